// Package caption は画像とキャプション（同名の .txt）の管理機能と、その HTTP ハンドラーを提供します。
package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/caption-forge/internal/config"
	"github.com/yourusername/caption-forge/internal/storage"
	"github.com/yourusername/caption-forge/internal/translate"
)

// Service は管理ディレクトリに対する操作をまとめたものです。
type Service struct {
	cfg        *config.Config
	store      *storage.Local
	translator translate.Translator
	allow      Allowlist
	captionExt string
	logger     *log.Logger
}

// NewService は Service を作成します。translator が nil の場合、翻訳は ErrNotConfigured になります。
func NewService(cfg *config.Config, store *storage.Local, translator translate.Translator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		translator: translator,
		allow:      NewAllowlist(cfg.ImageExtensions, cfg.TextExtensions),
		captionExt: cfg.CaptionExtension(),
		logger:     logger,
	}
}

// ListImages は画像ファイル名を数字順で返します。
func (s *Service) ListImages() ([]string, error) {
	names, err := s.store.Names()
	if err != nil {
		return nil, err
	}
	images := make([]string, 0, len(names))
	for _, name := range names {
		if s.allow.IsImage(name) {
			images = append(images, name)
		}
	}
	SortImages(images)
	return images, nil
}

// SkippedFile は保存しなかったアップロードとその理由です。
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// 保存しなかった理由
const (
	SkipExtension = "extension"
	SkipContent   = "content"
	SkipWrite     = "write"
)

// UploadSummary はアップロード結果です。
type UploadSummary struct {
	Saved   []string      `json:"saved"`
	Skipped []SkippedFile `json:"skipped"`
}

// SaveUploads は許可された拡張子の画像・テキストを保存します。
// 個別ファイルの失敗はログに残してスキップし、全体としてはエラーにしません。
func (s *Service) SaveUploads(ctx context.Context, files []*multipart.FileHeader) (*UploadSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	summary := &UploadSummary{}
	for _, fh := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if fh == nil || fh.Filename == "" {
			continue
		}

		name, kind := s.allow.storedUploadName(fh.Filename)
		if kind == KindUnknown {
			summary.Skipped = append(summary.Skipped, SkippedFile{Name: fh.Filename, Reason: SkipExtension})
			continue
		}

		if reason := s.storeUpload(fh, name, kind); reason != "" {
			summary.Skipped = append(summary.Skipped, SkippedFile{Name: fh.Filename, Reason: reason})
			continue
		}
		summary.Saved = append(summary.Saved, name)
	}
	return summary, nil
}

func (s *Service) storeUpload(fh *multipart.FileHeader, name string, kind FileKind) string {
	src, err := fh.Open()
	if err != nil {
		s.logger.Printf("failed to open upload %s: %v", fh.Filename, err)
		return SkipWrite
	}
	defer src.Close()

	if s.cfg.SniffUploads {
		ok, err := contentMatches(src, kind, fh.Size)
		if err != nil {
			s.logger.Printf("failed to inspect upload %s: %v", fh.Filename, err)
			return SkipWrite
		}
		if !ok {
			s.logger.Printf("upload %s rejected: content does not match extension", fh.Filename)
			return SkipContent
		}
	}

	if _, err := s.store.Write(name, src); err != nil {
		s.logger.Printf("failed to save upload %s: %v", fh.Filename, err)
		return SkipWrite
	}
	return ""
}

// contentMatches は内容を判定して種別と合っているかを返し、読み取り位置を先頭に戻します。
func contentMatches(src multipart.File, kind FileKind, size int64) (bool, error) {
	if size == 0 {
		return kind == KindText, nil
	}
	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return false, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	for m := mtype; m != nil; m = m.Parent() {
		switch kind {
		case KindImage:
			if strings.HasPrefix(m.String(), "image/") {
				return true, nil
			}
		case KindText:
			if m.Is("text/plain") {
				return true, nil
			}
		}
	}
	return false, nil
}

// ReadCaption は画像に対応するキャプションを返します。ファイルがない場合や読めない場合は空文字です。
func (s *Service) ReadCaption(image string) (string, error) {
	name, err := s.captionName(image)
	if err != nil {
		return "", err
	}
	data, err := s.store.Read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("failed to read caption %s: %v", name, err)
		}
		return "", nil
	}
	return string(data), nil
}

// WriteCaption は画像に対応するキャプションを書き込みます。
func (s *Service) WriteCaption(image, content string) error {
	name, err := s.captionName(image)
	if err != nil {
		return err
	}
	if err := s.store.WriteString(name, content); err != nil {
		s.logger.Printf("failed to save caption %s: %v", name, err)
		return err
	}
	return nil
}

func (s *Service) captionName(image string) (string, error) {
	name := captionFilename(image, s.captionExt)
	if _, err := s.store.Resolve(image); err != nil {
		return "", newError(CodeInvalidName, "", err)
	}
	if _, err := s.store.Resolve(name); err != nil {
		return "", newError(CodeInvalidName, "", err)
	}
	return name, nil
}

// Translate は text を翻訳します。空白だけのテキストは外部APIを呼ばずに空文字を返します。
// from / to が空の場合は設定の既定値を使います。
func (s *Service) Translate(ctx context.Context, text, from, to string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if s.translator == nil {
		return "", translate.ErrNotConfigured
	}
	if from == "" {
		from = s.cfg.TranslateFrom
	}
	if to == "" {
		to = s.cfg.TranslateTo
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.TranslateTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TranslateTimeoutSeconds)*time.Second)
		defer cancel()
	}

	translated, err := s.translator.Translate(ctx, text, from, to)
	if err != nil {
		s.logger.Printf("translation failed (%s -> %s): %v", from, to, err)
		return "", err
	}
	return translated, nil
}

// Clear はディレクトリ内のファイルをすべて削除します。
func (s *Service) Clear() (int, error) {
	removed, err := s.store.Clear()
	if err != nil {
		return removed, fmt.Errorf("failed to clear files: %w", err)
	}
	return removed, nil
}

// Open は保存済みファイルを配信用に開きます。
func (s *Service) Open(name string) (*os.File, fs.FileInfo, error) {
	file, info, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, nil, newError(CodeInvalidName, "", err)
		}
		return nil, nil, err
	}
	return file, info, nil
}
