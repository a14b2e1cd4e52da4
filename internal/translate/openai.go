package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions は OpenAI クライアントの設定です。
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAI はチャット補完APIで翻訳するクライアントです。
type OpenAI struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAI は OpenAI クライアントを作成します。
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		apiKey: opts.APIKey,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Translate はテキストを翻訳します。from が "auto" の場合は言語判定もモデルに任せます。
func (o *OpenAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	if o.apiKey == "" {
		return "", ErrNotConfigured
	}

	source := "the detected language"
	if from != "" && from != "auto" {
		source = fmt.Sprintf("language code %q", from)
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You translate image captions and prompts. Keep line breaks, comma separated tags and punctuation. Respond with only the translation, nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Translate from %s to language code %q:\n\n%s", source, to, text),
			},
		},
		Temperature: 0.2,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		// 5xx は通信障害と同じ扱いにする
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode < 500 {
			return "", &APIError{Provider: "openai", Code: fmt.Sprint(apiErr.Code), Message: apiErr.Message}
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoResult
	}
	translation := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translation == "" {
		return "", ErrNoResult
	}
	return translation, nil
}
