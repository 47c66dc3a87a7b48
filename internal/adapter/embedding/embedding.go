// Package embedding provides the embedding providers behind port.Embedder.
package embedding

import (
	"fmt"
	"time"

	"legalrag/config"
	"legalrag/internal/port"
)

// New builds the embedder named by cfg.Provider, rate limited when configured.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	var inner port.Embedder
	switch cfg.Provider {
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension, timeout)
		if err != nil {
			return nil, err
		}
		inner = e
	case config.ProviderOllama:
		inner = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension, timeout)
	case config.ProviderHash:
		inner = NewHashEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	return NewRateLimitedEmbedder(inner, cfg.RequestsPerSecond, cfg.Burst), nil
}
