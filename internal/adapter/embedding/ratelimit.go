package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"legalrag/internal/domain"
	"legalrag/internal/port"
)

// RateLimitedEmbedder spaces out provider calls with a token bucket. Every
// Embed call consumes one token regardless of how many texts it carries.
type RateLimitedEmbedder struct {
	inner   port.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner. A non-positive requestsPerSecond
// disables limiting and returns inner unchanged.
func NewRateLimitedEmbedder(inner port.Embedder, requestsPerSecond float64, burst int) port.Embedder {
	if requestsPerSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Wait fails early when the deadline leaves no room for a token.
		return nil, &domain.EmbeddingError{
			Op:        "wait for rate limit",
			Transient: true,
			Err:       fmt.Errorf("waiting for embedding rate limit: %w", err),
		}
	}
	return e.inner.Embed(ctx, texts)
}

func (e *RateLimitedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *RateLimitedEmbedder) ModelName() string {
	return e.inner.ModelName()
}
