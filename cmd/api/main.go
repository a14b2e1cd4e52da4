// Package main はキャプション管理サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/caption-forge/internal/caption"
	"github.com/yourusername/caption-forge/internal/config"
	"github.com/yourusername/caption-forge/internal/i18n"
	"github.com/yourusername/caption-forge/internal/jobs"
	"github.com/yourusername/caption-forge/internal/storage"
	"github.com/yourusername/caption-forge/internal/translate"
)

const (
	serviceName       = "caption-forge"
	serviceVersion    = "0.1.0"
	sessionCookieName = "caption_forge_session"
)

// app はルーティングに必要な依存をまとめたものです。
type app struct {
	cfg       *config.Config
	service   *caption.Service
	messages  *i18n.Localizer
	scheduler caption.BatchScheduler
	jobs      recordGetter
	logger    *log.Logger
}

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := log.Default()

	store, err := storage.NewLocal(cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	// Redis があれば翻訳キャッシュとジョブに使う
	var rdb *redis.Client
	var cache translate.Cache = translate.NewMemoryCache()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		cache = translate.NewRedisCache(rdb)
	}

	translator := translate.New(cfg, cache, logger)
	service := caption.NewService(cfg, store, translator, logger)

	a := &app{
		cfg:      cfg,
		service:  service,
		messages: i18n.New(cfg.UILocale, logger),
		logger:   logger,
	}

	var manager *jobs.Manager
	if rdb != nil {
		manager, err = setupJobs(cfg, rdb, service, logger)
		if err != nil {
			log.Fatalf("Failed to set up jobs: %v", err)
		}
		manager.StartWorkers()
		a.scheduler = manager
		a.jobs = manager
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router, err := newRouter(a)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting server on http://%s (mode: %s, uploads: %s)", cfg.Addr(), cfg.GinMode, store.Root())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Job manager shutdown error: %v", err)
		}
	}
}

// newRouter はミドルウェアとルートを設定した gin.Engine を返します。
func newRouter(a *app) (*gin.Engine, error) {
	// デフォルトミドルウェア: Logger, Recovery
	router := gin.Default()
	router.MaxMultipartMemory = 8 << 20

	tmpl, err := caption.Templates()
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	// セッションはフラッシュメッセージ専用
	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   a.cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionCookieName, store))

	// CORS はオリジンが指定された場合のみ有効にする
	if strings.TrimSpace(a.cfg.CORSAllowedOrigins) != "" {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = strings.Split(a.cfg.CORSAllowedOrigins, ",")
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Accept-Language",
		}
		router.Use(cors.New(corsConfig))
	}

	setupRoutes(router, a)
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// limitBody はリクエストボディを max バイトに制限します。
func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}

// setupRoutes は画面と API のルートを登録します。
func setupRoutes(router *gin.Engine, a *app) {
	router.GET("/health", handleHealth)

	svc := a.service
	msgs := a.messages
	defaults := caption.PageDefaults{From: a.cfg.TranslateFrom, To: a.cfg.TranslateTo}

	router.GET("/", caption.IndexHandler(svc, msgs, defaults, a.logger))
	router.POST("/upload", limitBody(a.cfg.MaxUploadSize), caption.UploadHandler(svc, msgs, a.logger))
	router.GET("/get_caption/:image", caption.GetCaptionHandler(svc, msgs))
	router.POST("/save_caption/:image", caption.SaveCaptionHandler(svc, msgs))
	router.POST("/translate", caption.TranslateHandler(svc, msgs))
	clearAll := caption.ClearHandler(svc, msgs, a.logger)
	router.GET("/clear_all", clearAll)
	router.POST("/clear_all", clearAll)
	router.GET("/uploads/:filename", caption.FileHandler(svc, msgs))

	api := router.Group("/api")
	{
		api.GET("/images", caption.ImagesHandler(svc, msgs))
		api.POST("/jobs/translate", caption.TranslateAllHandler(svc, a.scheduler, msgs))
		api.GET("/jobs/:id", jobStatusHandler(a.jobs, msgs, a.logger))
	}
}
