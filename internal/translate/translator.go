// Package translate は外部翻訳APIのクライアントと、その周辺（キャッシュ、サーキットブレーカー）を提供します。
package translate

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured は認証情報が設定されていない場合に返されます。
	ErrNotConfigured = errors.New("translation credentials are not configured")
	// ErrNoResult は応答に翻訳結果が含まれていない場合に返されます。
	ErrNoResult = errors.New("no translation result")
)

// Translator はテキストを from から to へ翻訳します。
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// APIError は翻訳APIが返したエラー応答です（通信自体は成功している）。
type APIError struct {
	Provider string
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error %s", e.Provider, e.Code)
	}
	return e.Message
}

// isAPIError は通信障害ではなくAPI側の業務エラーかどうかを判定します。
func isAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) || errors.Is(err, ErrNoResult) || errors.Is(err, ErrNotConfigured)
}
