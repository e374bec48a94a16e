// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/config"
)

// NewClient is a factory function that creates the translation backend selected by the
// configuration, wrapped in a rate limiter when a quota is configured.
func NewClient(ctx context.Context, cfg config.TranslatorConfig, logger *zap.Logger) (schemas.TranslationClient, error) {
	var (
		client schemas.TranslationClient
		err    error
	)

	switch cfg.Client {
	case config.ClientLocal:
		client, err = NewOllamaClient(cfg, logger)
	case config.ClientHosted, "":
		switch cfg.Provider {
		case config.ProviderOpenAI, "":
			client, err = NewOpenAIClient(cfg, logger)
		case config.ProviderGemini:
			client, err = NewGeminiClient(ctx, cfg, logger)
		default:
			return nil, fmt.Errorf("unknown or unsupported hosted provider: '%s'. Supported: [%s, %s]", cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
		}
	default:
		return nil, fmt.Errorf("unsupported client: '%s'. Supported: [%s, %s]", cfg.Client, config.ClientHosted, config.ClientLocal)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		logger.Named("llm_client").Info("Rate limiting translation requests.", zap.Int("requests_per_minute", cfg.RequestsPerMinute))
		client = NewRateLimitedClient(client, cfg.RequestsPerMinute)
	}

	// A hosted backend may fall back to the local model server on failure.
	if cfg.FallbackLocal && cfg.Client != config.ClientLocal {
		localCfg := cfg
		localCfg.Model = cfg.Local.Model
		local, err := NewOllamaClient(localCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create local fallback client: %w", err)
		}
		return NewFallbackRouter(logger, client, local)
	}
	return client, nil
}
