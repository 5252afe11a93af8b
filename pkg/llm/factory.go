package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// New creates the configured provider wrapped in a BreakerCompleter.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*BreakerCompleter, error) {
	logger = logger.Named("llm")
	opts := Options{
		Model:           cfg.Model,
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}

	var (
		provider Completer
		err      error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		provider, err = NewGeminiClient(ctx, opts, logger)
	case ProviderOpenAI:
		provider, err = NewOpenAIClient(opts, logger)
	case ProviderAnthropic:
		provider, err = NewAnthropicClient(opts, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	logger.Info("Completion provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model))

	return NewBreakerCompleter(provider, BreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		ResetAfter: cfg.BreakerReset(),
	}, logger), nil
}
