package caption

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/caption-forge/internal/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// IndexTemplateName は一覧ページのテンプレート名です。
const IndexTemplateName = "index.html"

// Templates は埋め込みテンプレートを読み込みます。gin.Engine.SetHTMLTemplate に渡して使います。
func Templates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"fileURL": func(name string) string {
			return "/uploads/" + url.PathEscape(name)
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// PageDefaults は一覧ページの翻訳フォームの初期値です。
type PageDefaults struct {
	From string
	To   string
}

// IndexHandler は GET / のハンドラーを返します。一覧の取得に失敗しても空の一覧でページを返します。
func IndexHandler(svc ImageLister, msgs Messages, defaults PageDefaults, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := svc.ListImages()
		if err != nil {
			logger.Printf("failed to list images: %v", err)
			images = nil
		}
		lang := acceptLanguage(c)
		c.HTML(http.StatusOK, IndexTemplateName, gin.H{
			"Title":      msgs.T(lang, i18n.PageTitle, nil),
			"Images":     images,
			"ImageCount": len(images),
			"CountLabel": msgs.T(lang, i18n.ImageCount, map[string]any{"Count": len(images)}),
			"Flashes":    takeFlashes(c),
			"Labels": gin.H{
				"Upload":       msgs.T(lang, i18n.LabelUpload, nil),
				"Clear":        msgs.T(lang, i18n.LabelClear, nil),
				"Save":         msgs.T(lang, i18n.LabelSave, nil),
				"Translate":    msgs.T(lang, i18n.LabelTranslate, nil),
				"Saved":        msgs.T(lang, i18n.LabelSaved, nil),
				"ConfirmClear": msgs.T(lang, i18n.LabelConfirmClear, nil),
			},
			"From":       defaults.From,
			"To":         defaults.To,
		})
	}
}

// addFlash はセッションがある場合だけフラッシュメッセージを積みます。
// Save のたびに Set-Cookie が増えるため、まとめて渡して1回だけ保存します。
func addFlash(c *gin.Context, messages ...string) {
	if _, ok := c.Get(sessions.DefaultKey); !ok || len(messages) == 0 {
		return
	}
	session := sessions.Default(c)
	for _, m := range messages {
		session.AddFlash(m)
	}
	if err := session.Save(); err != nil {
		log.Printf("failed to save session: %v", err)
	}
}

func takeFlashes(c *gin.Context) []string {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		log.Printf("failed to save session: %v", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
