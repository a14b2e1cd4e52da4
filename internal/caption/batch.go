package caption

import (
	"context"
	"regexp"
	"strings"
)

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

var languageCode = regexp.MustCompile(`^[A-Za-z]{2,8}(-[A-Za-z0-9]{1,8})*$`)

// BatchOptions は一括翻訳の指定です。
type BatchOptions struct {
	From      string `json:"src"`
	To        string `json:"dest"`
	Overwrite bool   `json:"overwrite"` // false の場合は "<語幹>.<to>.txt" に書き出す
}

// BatchResult は一括翻訳の結果です。
type BatchResult struct {
	Total      int      `json:"total"`
	Translated int      `json:"translated"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
	Outputs    []string `json:"outputs,omitempty"`
}

// Normalize は既定値を補い、出力ファイル名に使う言語コードを検証します。
func (s *Service) Normalize(opts BatchOptions) (BatchOptions, error) {
	opts.From = strings.TrimSpace(opts.From)
	opts.To = strings.TrimSpace(opts.To)
	if opts.From == "" {
		opts.From = s.cfg.TranslateFrom
	}
	if opts.To == "" {
		opts.To = s.cfg.TranslateTo
	}
	if opts.To == "auto" || !languageCode.MatchString(opts.To) {
		return opts, newError(CodeInvalidInput, "", nil)
	}
	if opts.From != "auto" && !languageCode.MatchString(opts.From) {
		return opts, newError(CodeInvalidInput, "", nil)
	}
	return opts, nil
}

// TranslateAll はすべての画像のキャプションを翻訳して書き出します。
// 空のキャプションはスキップし、翻訳に失敗した画像は Failed に記録して続行します。
func (s *Service) TranslateAll(ctx context.Context, opts BatchOptions, reporter ProgressReporter) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := s.Normalize(opts)
	if err != nil {
		return nil, err
	}

	reportProgress(reporter, "load", 0)
	images, err := s.ListImages()
	if err != nil {
		return nil, err
	}

	// 他の画像のキャプションを訳文で上書きしないよう、ペアになっている名前を控えておく
	captions := make(map[string]struct{}, len(images))
	for _, image := range images {
		captions[captionFilename(image, s.captionExt)] = struct{}{}
	}

	result := &BatchResult{Total: len(images)}
	for i, image := range images {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		caption, err := s.ReadCaption(image)
		if err != nil || strings.TrimSpace(caption) == "" {
			result.Skipped++
			reportProgress(reporter, "translate", (i+1)*100/len(images))
			continue
		}

		translated, err := s.Translate(ctx, caption, opts.From, opts.To)
		if err != nil {
			result.Failed = append(result.Failed, image)
			reportProgress(reporter, "translate", (i+1)*100/len(images))
			continue
		}

		output, ok := s.batchOutputName(image, opts, captions)
		if !ok {
			s.logger.Printf("no free output name for %s, skipping", image)
			result.Failed = append(result.Failed, image)
		} else if err := s.store.WriteString(output, translated); err != nil {
			s.logger.Printf("failed to write translated caption %s: %v", output, err)
			result.Failed = append(result.Failed, image)
		} else {
			result.Translated++
			result.Outputs = append(result.Outputs, output)
		}
		reportProgress(reporter, "translate", (i+1)*100/len(images))
	}

	reportProgress(reporter, "completed", 100)
	return result, nil
}

// batchOutputName は訳文の書き出し先を返します。
// 上書きしない場合は "<語幹>.<to>.txt"、それが別の画像のキャプションなら "<語幹>.translated.<to>.txt" を使います。
func (s *Service) batchOutputName(image string, opts BatchOptions, captions map[string]struct{}) (string, bool) {
	if opts.Overwrite {
		return captionFilename(image, s.captionExt), true
	}
	stem, _ := splitExt(image)
	for _, name := range []string{
		stem + "." + opts.To + s.captionExt,
		stem + ".translated." + opts.To + s.captionExt,
	} {
		if _, taken := captions[name]; !taken {
			return name, true
		}
	}
	return "", false
}
