// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// CaptionExt は画像と対になるキャプションファイルの拡張子です。
const CaptionExt = ".txt"

// 翻訳プロバイダー名
const (
	ProviderBaidu  = "baidu"
	ProviderOpenAI = "openai"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Host    string // 待ち受けホスト
	Port    string // 待ち受けポート
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）

	// セッション設定（フラッシュメッセージ用）
	SessionSecret string

	// ファイル設定
	UploadDir       string   // 画像とキャプションを置くディレクトリ
	MaxUploadSize   int64    // アップロード時のリクエスト上限（バイト）
	ImageExtensions []string // 画像として扱う拡張子
	TextExtensions  []string // テキストとして扱う拡張子
	SniffUploads    bool     // アップロード内容を拡張子と突き合わせるか

	// UI設定
	UILocale string

	// 翻訳設定
	TranslateProvider       string
	TranslateFrom           string
	TranslateTo             string
	TranslateTimeoutSeconds int
	TranslateCacheMinutes   int
	BaiduAppID              string
	BaiduAppKey             string
	BaiduEndpoint           string
	BaiduPath               string
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIBaseURL           string

	// サーキットブレーカー設定
	BreakerMaxFailures     int
	BreakerCooldownSeconds int

	// ジョブ/キュー設定
	RedisURL         string // 空の場合はメモリキャッシュのみでジョブは無効
	JobExpireMinutes int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Host:    getEnv("HOST", "127.0.0.1"),
		Port:    getEnv("PORT", "5000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		SessionSecret:      getEnv("SESSION_SECRET", ""),

		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadSize:   getEnvAsInt64("MAX_UPLOAD_SIZE", 16*1024*1024), // 16MB
		ImageExtensions: getEnvAsList("IMAGE_EXTENSIONS", "png,jpg,jpeg,gif"),
		TextExtensions:  getEnvAsList("TEXT_EXTENSIONS", "txt"),
		SniffUploads:    getEnvAsBool("SNIFF_UPLOADS", true),

		UILocale: getEnv("UI_LOCALE", "zh"),

		TranslateProvider:       strings.ToLower(getEnv("TRANSLATE_PROVIDER", ProviderBaidu)),
		TranslateFrom:           getEnv("TRANSLATE_FROM", "auto"),
		TranslateTo:             getEnv("TRANSLATE_TO", "zh"),
		TranslateTimeoutSeconds: getEnvAsInt("TRANSLATE_TIMEOUT_SECONDS", 10),
		TranslateCacheMinutes:   getEnvAsInt("TRANSLATE_CACHE_MINUTES", 60),
		BaiduAppID:              getEnv("BAIDU_APPID", ""),
		BaiduAppKey:             getEnv("BAIDU_APPKEY", ""),
		BaiduEndpoint:           getEnv("BAIDU_ENDPOINT", "http://api.fanyi.baidu.com"),
		BaiduPath:               getEnv("BAIDU_PATH", "/api/trans/vip/translate"),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:           getEnv("OPENAI_BASE_URL", ""),

		BreakerMaxFailures:     getEnvAsInt("BREAKER_MAX_FAILURES", 5),
		BreakerCooldownSeconds: getEnvAsInt("BREAKER_COOLDOWN_SECONDS", 30),

		RedisURL:         getEnv("REDIS_URL", ""),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// ローカル利用ではプロセスごとの鍵で十分
	if config.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		config.SessionSecret = secret
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if len(c.ImageExtensions) == 0 {
		return fmt.Errorf("IMAGE_EXTENSIONS must list at least one extension")
	}
	if len(c.TextExtensions) == 0 {
		return fmt.Errorf("TEXT_EXTENSIONS must list at least one extension")
	}
	if !slices.Contains(c.TextExtensions, strings.TrimPrefix(CaptionExt, ".")) {
		return fmt.Errorf("TEXT_EXTENSIONS must include %q so caption files can be uploaded", strings.TrimPrefix(CaptionExt, "."))
	}

	switch c.TranslateProvider {
	case ProviderBaidu, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown TRANSLATE_PROVIDER: %q", c.TranslateProvider)
	}

	if c.GinMode == "release" && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in release mode")
	}

	return nil
}

// Addr は http.Server に渡す待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// CaptionExtension はキャプションファイルの拡張子（先頭ドット付き）です。
// TEXT_EXTENSIONS の内容にかかわらず常に CaptionExt です。
func (c *Config) CaptionExtension() string {
	return CaptionExt
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの値を小文字・先頭ドットなしの一覧にします。
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item), "."))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
