// Package storage は管理対象ディレクトリ（フラットな1階層）へのファイル操作を提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const tempPrefix = ".tmp-"

// ErrInvalidName はディレクトリ外を指す、または不正なファイル名に返されます。
var ErrInvalidName = errors.New("invalid file name")

// Local はローカルディレクトリ1つを扱うストレージです。
type Local struct {
	root   string
	logger *log.Logger
}

// NewLocal はディレクトリを（無ければ作成して）Local を返します。
func NewLocal(root string, logger *log.Logger) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Local{root: root, logger: logger}, nil
}

// Root はディレクトリのパスを返します。
func (l *Local) Root() string {
	return l.root
}

// Resolve はファイル名をディレクトリ内のパスに変換します。
// サブディレクトリや親ディレクトリを指す名前は受け付けません。
func (l *Local) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	return filepath.Join(l.root, name), nil
}

// Names はディレクトリ直下の通常ファイル名を名前順で返します。
func (l *Local) Names() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists は通常ファイルが存在するかを返します。
func (l *Local) Exists(name string) bool {
	path, err := l.Resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Write は一時ファイル経由で name に内容を書き込みます（既存ファイルは置き換え）。
func (l *Local) Write(name string, r io.Reader) (int64, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return 0, err
	}

	tmpPath := filepath.Join(l.root, tempPrefix+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr != nil {
			return 0, fmt.Errorf("failed to write %s: %w", name, copyErr)
		}
		return 0, fmt.Errorf("failed to close %s: %w", name, closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to store %s: %w", name, err)
	}
	return written, nil
}

// WriteString は文字列をそのまま書き込みます。
func (l *Local) WriteString(name, content string) error {
	_, err := l.Write(name, strings.NewReader(content))
	return err
}

// Read はファイル内容を返します。存在しない場合は fs.ErrNotExist を包んだエラーを返します。
func (l *Local) Read(name string) ([]byte, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Open は配信用にファイルを開きます。ディレクトリは fs.ErrNotExist として扱います。
func (l *Local) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, nil, fs.ErrNotExist
	}
	return file, info, nil
}

// Clear はディレクトリ直下の通常ファイルをすべて削除します。
// 個別の失敗はログに残して処理を続け、まとめて返します。
func (l *Local) Clear() (int, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage root: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(l.root, entry.Name())
		if err := os.Remove(path); err != nil {
			l.logger.Printf("failed to remove %s: %v", entry.Name(), err)
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
