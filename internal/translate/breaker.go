package translate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable はサーキットブレーカーが開いていて呼び出しを行わなかったことを示します。
var ErrUnavailable = errors.New("translation service unavailable")

// BreakerOptions はサーキットブレーカーの設定です。
type BreakerOptions struct {
	Name        string
	MaxFailures int           // 連続失敗がこの回数に達したら開く
	Cooldown    time.Duration // 開いている時間
	Logger      *log.Logger
}

// Breaker は Translator を gobreaker で包みます。API の業務エラーは失敗として数えません。
type Breaker struct {
	next Translator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker は Breaker を作成します。
func NewBreaker(next Translator, opts BreakerOptions) *Breaker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "translate"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxFailures := uint32(opts.MaxFailures)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isAPIError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Translate は下位の Translator を呼び出します。開いている間は ErrUnavailable を返します。
func (b *Breaker) Translate(ctx context.Context, text, from, to string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Translate(ctx, text, from, to)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrUnavailable
		}
		return "", err
	}
	return out.(string), nil
}

// State は現在のブレーカー状態を文字列で返します。
func (b *Breaker) State() string {
	return b.cb.State().String()
}
