// Package i18n は画面表示やエラーメッセージの多言語化を提供します。
package i18n

import (
	"embed"
	"log"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

// メッセージID
const (
	PageTitle              = "page_title"
	ImageCount             = "image_count"
	FlashUploaded          = "flash_uploaded"
	FlashSkipped           = "flash_skipped"
	FlashUploadNone        = "flash_upload_none"
	FlashCleared           = "flash_cleared"
	FlashClearFailed       = "flash_clear_failed"
	TranslateFailed        = "translate_failed"
	TranslateRequestFailed = "translate_request_failed"
	TranslateNoResult      = "translate_no_result"
	TranslateUnavailable   = "translate_unavailable"
	LabelUpload            = "label_upload"
	LabelClear             = "label_clear"
	LabelSave              = "label_save"
	LabelTranslate         = "label_translate"
	LabelSaved             = "label_saved"
	LabelConfirmClear      = "label_confirm_clear"
)

// Localizer は go-i18n の Bundle を包み、既定ロケールへのフォールバックを行います。
type Localizer struct {
	bundle        *i18n.Bundle
	defaultLocale language.Tag
	logger        *log.Logger
}

// New は埋め込みの active.*.toml を読み込んだ Localizer を返します。
func New(defaultLocale string, logger *log.Logger) *Localizer {
	if logger == nil {
		logger = log.Default()
	}
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.Chinese
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range []string{"active.zh.toml", "active.en.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			logger.Printf("i18n: failed to load %s: %v", file, err)
		}
	}

	return &Localizer{
		bundle:        bundle,
		defaultLocale: tag,
		logger:        logger,
	}
}

// T は id のメッセージを描画します。accept には Accept-Language ヘッダーの値やロケール名を渡せます。
// 見つからない場合は既定ロケール、最後は id そのものを返します。
func (l *Localizer) T(accept, id string, data map[string]any) string {
	if id == "" {
		return ""
	}

	languages := []string{}
	if accept != "" {
		languages = append(languages, accept)
	}
	languages = append(languages, l.defaultLocale.String())

	localizer := i18n.NewLocalizer(l.bundle, languages...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		l.logger.Printf("i18n: localize failed (id=%s, languages=%v): %v", id, languages, err)
		return id
	}
	return msg
}
