package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: sustained rate plus burst.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimitedEmbedder paces calls to a shared embedding backend.
// Each Embed costs one token; each EmbedBatch costs one token per request.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner. A non-positive rate disables limiting.
func NewRateLimitedEmbedder(inner Embedder, cfg RateLimitConfig) *RateLimitedEmbedder {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(limit, cfg.Burst)}
}

// Embed waits for a token, then embeds.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds the batch.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func (r *RateLimitedEmbedder) Dimensions() int                    { return r.inner.Dimensions() }
func (r *RateLimitedEmbedder) ModelName() string                  { return r.inner.ModelName() }
func (r *RateLimitedEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }
func (r *RateLimitedEmbedder) Close() error                       { return r.inner.Close() }

var _ Embedder = (*RateLimitedEmbedder)(nil)
