package translate

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	baiduSuccessCode = "52000"
	saltMin          = 32768
	saltMax          = 65536
)

// BaiduOptions は Baidu クライアントの設定です。
type BaiduOptions struct {
	AppID    string
	AppKey   string
	Endpoint string
	Path     string
	Timeout  time.Duration
}

// Baidu は共有鍵＋salt＋MD5署名のクエリパラメータで認証する翻訳APIクライアントです。
type Baidu struct {
	opts   BaiduOptions
	client *http.Client
	salt   func() int
}

// NewBaidu は Baidu クライアントを作成します。
func NewBaidu(opts BaiduOptions) *Baidu {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://api.fanyi.baidu.com"
	}
	if opts.Path == "" {
		opts.Path = "/api/trans/vip/translate"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Baidu{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		salt: func() int {
			return saltMin + rand.IntN(saltMax-saltMin+1)
		},
	}
}

type baiduResponse struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	ErrorCode   json.RawMessage `json:"error_code"`
	ErrorMsg    string          `json:"error_msg"`
	TransResult []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"trans_result"`
}

// Translate はテキストを翻訳します。複数行の入力は行ごとの結果を改行で連結して返します。
func (b *Baidu) Translate(ctx context.Context, text, from, to string) (string, error) {
	if b.opts.AppID == "" || b.opts.AppKey == "" {
		return "", ErrNotConfigured
	}

	salt := strconv.Itoa(b.salt())
	params := url.Values{}
	params.Set("appid", b.opts.AppID)
	params.Set("q", text)
	params.Set("from", from)
	params.Set("to", to)
	params.Set("salt", salt)
	params.Set("sign", Sign(b.opts.AppID, text, salt, b.opts.AppKey))

	endpoint := strings.TrimRight(b.opts.Endpoint, "/") + b.opts.Path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result baiduResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if code := errorCode(result.ErrorCode); code != "" && code != baiduSuccessCode {
		msg := result.ErrorMsg
		if msg == "" {
			msg = "unknown error"
		}
		return "", &APIError{Provider: "baidu", Code: code, Message: msg}
	}

	if len(result.TransResult) == 0 {
		return "", ErrNoResult
	}
	lines := make([]string, len(result.TransResult))
	for i, tr := range result.TransResult {
		lines[i] = tr.Dst
	}
	return strings.Join(lines, "\n"), nil
}

// Sign は appid + q + salt + appkey の MD5 を16進文字列で返します。
func Sign(appID, text, salt, appKey string) string {
	sum := md5.Sum([]byte(appID + text + salt + appKey))
	return hex.EncodeToString(sum[:])
}

// errorCode は文字列・数値どちらの error_code も文字列にそろえます。
func errorCode(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
