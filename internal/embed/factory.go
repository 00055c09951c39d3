package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType selects an embedding backend.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings.
	ProviderStatic ProviderType = "static"

	// ProviderAuto tries Ollama and falls back to static.
	ProviderAuto ProviderType = "auto"
)

// FactoryConfig is everything NewEmbedder needs.
type FactoryConfig struct {
	Provider   ProviderType
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration

	// CacheSize <= 0 disables the LRU.
	CacheSize int

	RateLimit RateLimitConfig
}

// NewEmbedder builds the configured embedder and wraps it with the
// rate limiter and cache. An explicit ollama provider never falls back;
// auto degrades to static with the same dimension so the store stays usable.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch ProviderType(strings.ToLower(string(cfg.Provider))) {
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host: cfg.Host, Model: cfg.Model, Dimensions: cfg.Dimensions,
			BatchSize: cfg.BatchSize, Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	case ProviderAuto, "":
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host: cfg.Host, Model: cfg.Model, Dimensions: cfg.Dimensions,
			BatchSize: cfg.BatchSize, Timeout: cfg.Timeout,
		})
		if err != nil {
			slog.Warn("embedder_fallback_static",
				slog.String("reason", err.Error()),
				slog.Int("dimensions", cfg.Dimensions))
			inner = NewStaticEmbedder(cfg.Dimensions)
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	var e Embedder = inner
	if cfg.RateLimit.RequestsPerSecond > 0 {
		e = NewRateLimitedEmbedder(e, cfg.RateLimit)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
