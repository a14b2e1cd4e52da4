package caption

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/caption-forge/internal/i18n"
	"github.com/yourusername/caption-forge/internal/storage"
	"github.com/yourusername/caption-forge/internal/translate"
)

// ImageLister は画像一覧を返します。
type ImageLister interface {
	ListImages() ([]string, error)
}

// Uploader はアップロードを保存します。
type Uploader interface {
	SaveUploads(ctx context.Context, files []*multipart.FileHeader) (*UploadSummary, error)
}

// CaptionStore はキャプションの読み書きを行います。
type CaptionStore interface {
	ReadCaption(image string) (string, error)
	WriteCaption(image, content string) error
}

// TextTranslator はテキストを翻訳します。
type TextTranslator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Clearer はディレクトリを空にします。
type Clearer interface {
	Clear() (int, error)
}

// FileOpener は保存済みファイルを開きます。
type FileOpener interface {
	Open(name string) (*os.File, fs.FileInfo, error)
}

// BatchScheduler は一括翻訳を非同期キューに投入します。
type BatchScheduler interface {
	ScheduleTranslateAll(ctx context.Context, opts BatchOptions) (string, error)
}

// BatchNormalizer は一括翻訳の指定を検証します。
type BatchNormalizer interface {
	Normalize(opts BatchOptions) (BatchOptions, error)
}

// Messages はローカライズ済みメッセージを返します。
type Messages interface {
	T(accept, id string, data map[string]any) string
}

// ImagesHandler は GET /api/images のハンドラーを返します。
func ImagesHandler(svc ImageLister, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := svc.ListImages()
		if err != nil {
			respondWithError(c, msgs, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"images": images,
			"count":  len(images),
		})
	}
}

// UploadHandler は POST /upload のハンドラーを返します。結果はフラッシュメッセージにして / へリダイレクトします。
func UploadHandler(svc Uploader, msgs Messages, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
				respondWithError(c, msgs, newError(CodeLimitExceeded, "", err))
				return
			}
			addFlash(c, msgs.T(acceptLanguage(c), i18n.FlashUploadNone, nil))
			c.Redirect(http.StatusFound, "/")
			return
		}
		defer form.RemoveAll()

		files := form.File["files"]
		if len(files) == 0 {
			files = form.File["files[]"]
		}
		if len(files) == 0 {
			addFlash(c, msgs.T(acceptLanguage(c), i18n.FlashUploadNone, nil))
			c.Redirect(http.StatusFound, "/")
			return
		}

		summary, err := svc.SaveUploads(c.Request.Context(), files)
		if err != nil {
			logger.Printf("upload interrupted: %v", err)
		}
		if summary != nil {
			lang := acceptLanguage(c)
			flashes := []string{msgs.T(lang, i18n.FlashUploaded, map[string]any{"Count": len(summary.Saved)})}
			if len(summary.Skipped) > 0 {
				flashes = append(flashes, msgs.T(lang, i18n.FlashSkipped, map[string]any{
					"Count": len(summary.Skipped),
					"Names": skippedNames(summary.Skipped),
				}))
			}
			addFlash(c, flashes...)
		}
		c.Redirect(http.StatusFound, "/")
	}
}

// maxFlashNames はフラッシュに載せるファイル名の上限です。セッションはクッキーに入るため長くできません。
const maxFlashNames = 10

func skippedNames(skipped []SkippedFile) string {
	n := min(len(skipped), maxFlashNames)
	names := make([]string, 0, n+1)
	for _, sk := range skipped[:n] {
		names = append(names, sk.Name)
	}
	if len(skipped) > n {
		names = append(names, "…")
	}
	return strings.Join(names, ", ")
}

// GetCaptionHandler は GET /get_caption/:image のハンドラーを返します。
func GetCaptionHandler(svc CaptionStore, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		caption, err := svc.ReadCaption(c.Param("image"))
		if err != nil {
			respondWithError(c, msgs, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"caption": caption})
	}
}

type saveCaptionRequest struct {
	Content string `json:"content"`
}

// SaveCaptionHandler は POST /save_caption/:image のハンドラーを返します。
func SaveCaptionHandler(svc CaptionStore, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveCaptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   msgs.T(acceptLanguage(c), messageID(CodeInvalidInput), nil),
			})
			return
		}

		if err := svc.WriteCaption(c.Param("image"), req.Content); err != nil {
			status := http.StatusInternalServerError
			message := err.Error()
			var apiErr *Error
			if errors.As(err, &apiErr) {
				status = http.StatusBadRequest
				message = msgs.T(acceptLanguage(c), messageID(apiErr.Code), nil)
			}
			c.JSON(status, gin.H{
				"success": false,
				"error":   message,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type translateRequest struct {
	Text string `json:"text"`
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// TranslateHandler は POST /translate のハンドラーを返します。
// 翻訳の失敗は "translated" に表示用の文字列を入れ、"error": true を付けて 200 で返します。
func TranslateHandler(svc TextTranslator, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req translateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, msgs, newError(CodeInvalidInput, "", err))
			return
		}

		translated, err := svc.Translate(c.Request.Context(), req.Text, req.Src, req.Dest)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{
				"translated": translationFailureMessage(msgs, acceptLanguage(c), err),
				"error":      true,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"translated": translated})
	}
}

func translationFailureMessage(msgs Messages, lang string, err error) string {
	var apiErr *translate.APIError
	switch {
	case errors.As(err, &apiErr):
		return msgs.T(lang, i18n.TranslateFailed, map[string]any{"Reason": apiErr.Message})
	case errors.Is(err, translate.ErrNoResult):
		return msgs.T(lang, i18n.TranslateNoResult, nil)
	case errors.Is(err, translate.ErrUnavailable):
		return msgs.T(lang, i18n.TranslateUnavailable, nil)
	default:
		return msgs.T(lang, i18n.TranslateRequestFailed, map[string]any{"Reason": err.Error()})
	}
}

// ClearHandler は /clear_all のハンドラーを返します。
func ClearHandler(svc Clearer, msgs Messages, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := svc.Clear()
		lang := acceptLanguage(c)
		var flashes []string
		if err != nil {
			logger.Printf("clear finished with errors: %v", err)
			flashes = append(flashes, msgs.T(lang, i18n.FlashClearFailed, nil))
		}
		flashes = append(flashes, msgs.T(lang, i18n.FlashCleared, map[string]any{"Count": removed}))
		addFlash(c, flashes...)
		c.Redirect(http.StatusFound, "/")
	}
}

// FileHandler は GET /uploads/:filename のハンドラーを返します。
func FileHandler(svc FileOpener, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, info, err := svc.Open(c.Param("filename"))
		if err != nil {
			var apiErr *Error
			if errors.As(err, &apiErr) && apiErr.Code == CodeInvalidName {
				err = newError(CodeNotFound, "", err)
			}
			respondWithError(c, msgs, err)
			return
		}
		defer file.Close()

		c.Header("X-Content-Type-Options", "nosniff")
		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
	}
}

// TranslateAllHandler は POST /api/jobs/translate のハンドラーを返します。scheduler が nil の場合は 503 です。
func TranslateAllHandler(svc BatchNormalizer, scheduler BatchScheduler, msgs Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		if scheduler == nil {
			respondWithError(c, msgs, newError(CodeQueueDisabled, "", nil))
			return
		}

		var opts BatchOptions
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&opts); err != nil {
				respondWithError(c, msgs, newError(CodeInvalidInput, "", err))
				return
			}
		}
		opts, err := svc.Normalize(opts)
		if err != nil {
			respondWithError(c, msgs, err)
			return
		}

		jobID, err := scheduler.ScheduleTranslateAll(c.Request.Context(), opts)
		if err != nil {
			respondWithError(c, msgs, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

var errorStatus = map[string]int{
	CodeInvalidInput:  http.StatusBadRequest,
	CodeInvalidName:   http.StatusBadRequest,
	CodeNotFound:      http.StatusNotFound,
	CodeLimitExceeded: http.StatusRequestEntityTooLarge,
	CodeQueueDisabled: http.StatusServiceUnavailable,
}

func respondWithError(c *gin.Context, msgs Messages, err error) {
	lang := acceptLanguage(c)
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status, ok := errorStatus[apiErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		message := apiErr.Message
		if message == "" {
			message = msgs.T(lang, messageID(apiErr.Code), nil)
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": message,
		})
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    CodeInvalidName,
			"message": msgs.T(lang, messageID(CodeInvalidName), nil),
		})
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    CodeNotFound,
			"message": msgs.T(lang, messageID(CodeNotFound), nil),
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternal,
			"message": msgs.T(lang, messageID(CodeInternal), nil),
		})
	}
}

// messageID はエラーコードを i18n のメッセージIDに変換します（INVALID_NAME -> error_invalid_name）。
func messageID(code string) string {
	return "error_" + strings.ToLower(code)
}

func acceptLanguage(c *gin.Context) string {
	return c.GetHeader("Accept-Language")
}
