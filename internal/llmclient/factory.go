// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/config"
)

// NewModelClient creates the provider client for one model entry.
func NewModelClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewClient builds the tier router described by cfg, wrapped in a rate
// limiter when cfg.RateLimit is set.
func NewClient(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fast, err := NewModelClient(cfg.ModelConfig(cfg.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("fast tier client: %w", err)
	}
	var powerful schemas.LLMClient = fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		if powerful, err = NewModelClient(cfg.ModelConfig(cfg.DefaultPowerfulModel), logger); err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("powerful tier client: %w", err)
		}
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit > 0 {
		logger.Info("LLM rate limiting enabled", zap.Float64("per_second", cfg.RateLimit), zap.Int("burst", cfg.RateBurst))
		return NewRateLimitedClient(router, cfg.RateLimit, cfg.RateBurst), nil
	}
	return router, nil
}
