package relay

import (
	"github.com/RichardoC/orion/internal/config"
	"github.com/RichardoC/orion/internal/search"
	"go.uber.org/zap"
)

// ConfigOptions translates the LLM and search settings into relay options.
// Augmentation follows search.enabled alone: without an API key the
// searcher finds nothing, but realtime questions still announce the search.
func ConfigOptions(cfg *config.Config, logger *zap.Logger) []Option {
	opts := []Option{
		WithSystemPrompt(cfg.LLM.SystemPrompt),
		WithTimeout(cfg.LLM.Timeout),
	}
	if !cfg.Search.Enabled {
		logger.Info("Web search disabled")
		return opts
	}

	if cfg.Search.APIKey == "" {
		logger.Warn("Web search enabled without an API key, results will be empty")
	} else {
		logger.Info("Web search enabled", zap.String("endpoint", cfg.Search.Endpoint))
	}
	return append(opts, WithAugmentation(
		search.NewKeywordClassifier(cfg.Search.Keywords),
		search.NewTavily(cfg.Search.Endpoint, cfg.Search.APIKey, cfg.Search.MaxResults, cfg.Search.Timeout, logger),
	))
}
