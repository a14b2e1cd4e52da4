package translate

import (
	"log"
	"time"

	"github.com/yourusername/caption-forge/internal/config"
)

// New は設定に従ってプロバイダー、サーキットブレーカー、キャッシュを組み合わせた Translator を返します。
// cache が nil の場合、またはTTLが0以下の場合はキャッシュしません。
func New(cfg *config.Config, cache Cache, logger *log.Logger) Translator {
	timeout := time.Duration(cfg.TranslateTimeoutSeconds) * time.Second

	var provider Translator
	switch cfg.TranslateProvider {
	case config.ProviderOpenAI:
		provider = NewOpenAI(OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		provider = NewBaidu(BaiduOptions{
			AppID:    cfg.BaiduAppID,
			AppKey:   cfg.BaiduAppKey,
			Endpoint: cfg.BaiduEndpoint,
			Path:     cfg.BaiduPath,
			Timeout:  timeout,
		})
	}

	var t Translator = NewBreaker(provider, BreakerOptions{
		Name:        cfg.TranslateProvider,
		MaxFailures: cfg.BreakerMaxFailures,
		Cooldown:    time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
		Logger:      logger,
	})

	if cache != nil && cfg.TranslateCacheMinutes > 0 {
		t = NewCached(t, cache, time.Duration(cfg.TranslateCacheMinutes)*time.Minute, cfg.TranslateProvider, logger)
	}
	return t
}
