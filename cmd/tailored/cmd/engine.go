package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wwaihoe/TailorED/internal/chunk"
	"github.com/wwaihoe/TailorED/internal/config"
	"github.com/wwaihoe/TailorED/internal/daemon"
	"github.com/wwaihoe/TailorED/internal/embed"
	"github.com/wwaihoe/TailorED/internal/extract"
	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/rerank"
	"github.com/wwaihoe/TailorED/internal/search"
	"github.com/wwaihoe/TailorED/internal/store"
	"github.com/wwaihoe/TailorED/internal/telemetry"
)

// localEngine owns a recovered engine and the resources behind it.
type localEngine struct {
	*search.Engine
	lock *store.DataDirLock
}

// Close closes the engine, then releases the data directory.
func (l *localEngine) Close() error {
	return errors.Join(l.Engine.Close(), l.lock.Unlock())
}

// openEngine builds the engine described by cfg and recovers it from the
// passage store. The caller owns the returned engine and must Close it.
func openEngine(ctx context.Context, cfg *config.Config) (_ *localEngine, err error) {
	lock := store.NewDataDirLock(cfg.Store.DataDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			_ = lock.Unlock()
		}
	}()

	embedder, err := embed.NewEmbedder(ctx, embedderConfig(cfg))
	if err != nil {
		return nil, err
	}
	closers = append(closers, embedder.Close)

	passages, err := store.OpenPassageStore(ctx, store.PassageStoreConfig{
		Path:       cfg.StorePath(),
		Dimensions: cfg.Embeddings.Dimensions,
		Model:      embedder.ModelName(),
		ANN:        cfg.Store.ANN,
		M:          cfg.Store.HNSWM,
		EfSearch:   cfg.Store.EfSearch,
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, passages.Close)

	analyzer, err := store.DefaultAnalyzer()
	if err != nil {
		return nil, err
	}
	lexical, err := store.NewLexicalIndex()
	if err != nil {
		return nil, err
	}

	splitter, err := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	stage, err := rerank.NewStage(newScorer(ctx, cfg, analyzer))
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(passages, lexical, splitter, embedder, stage,
		search.Config{
			DefaultK:      cfg.Search.K,
			MaxK:          cfg.Search.MaxK,
			MaxDistance:   float32(cfg.Search.MaxDistance),
			MinScore:      cfg.Search.MinScore,
			SearchTimeout: cfg.Search.Timeout,
		},
		search.WithExtractor(extract.New(extractorConfig(cfg))),
		search.WithQueryMetrics(telemetry.NewQueryMetrics(telemetry.DefaultConfig())),
	)
	if err != nil {
		return nil, err
	}
	closers = []func() error{engine.Close}

	if err := engine.Recover(ctx); err != nil {
		return nil, err
	}
	return &localEngine{Engine: engine, lock: lock}, nil
}

func embedderConfig(cfg *config.Config) embed.FactoryConfig {
	e := cfg.Embeddings
	return embed.FactoryConfig{
		Provider:   embed.ProviderType(e.Provider),
		Host:       e.OllamaHost,
		Model:      e.Model,
		Dimensions: e.Dimensions,
		BatchSize:  e.BatchSize,
		Timeout:    e.Timeout,
		CacheSize:  e.CacheSize,
		RateLimit: embed.RateLimitConfig{
			RequestsPerSecond: e.RequestsPerSecond,
			Burst:             e.Burst,
		},
	}
}

func extractorConfig(cfg *config.Config) extract.Config {
	x := extract.DefaultConfig()
	e := cfg.Extraction
	x.PDFCommand = e.PDFCommand
	x.VisionHost = e.VisionHost
	x.VisionModel = e.VisionModel
	x.WhisperEndpoint = e.WhisperEndpoint
	x.WhisperModel = e.WhisperModel
	x.Timeout = e.Timeout
	x.MaxBytes = int64(e.MaxUploadMB) << 20
	return x
}

// newScorer returns the lexical scorer, or for the http provider a
// cross-encoder that falls back to it. An unreachable cross-encoder at
// startup degrades to lexical scoring with a warning.
func newScorer(ctx context.Context, cfg *config.Config, analyzer *store.Analyzer) rerank.Scorer {
	lexical := rerank.NewLexicalScorer(analyzer)
	if !strings.EqualFold(cfg.Reranker.Provider, "http") {
		return lexical
	}

	remote, err := rerank.NewHTTPScorer(ctx, rerank.HTTPConfig{
		Endpoint:    cfg.Reranker.Endpoint,
		Model:       cfg.Reranker.Model,
		Timeout:     cfg.Reranker.Timeout,
		MaxFailures: cfg.Reranker.MaxFailures,

		RequestsPerSecond: cfg.Reranker.RequestsPerSecond,
		Burst:             cfg.Reranker.Burst,
	})
	if err != nil {
		slog.Warn("reranker_unavailable_using_lexical",
			slog.String("endpoint", cfg.Reranker.Endpoint),
			slog.String("error", err.Error()))
		return lexical
	}
	return rerank.NewFallbackScorer(remote, lexical)
}

// daemonConfig points the daemon defaults at the configured socket.
func daemonConfig(cfg *config.Config) daemon.Config {
	d := daemon.DefaultConfig()
	if cfg.Server.SocketPath != "" {
		d.SocketPath = cfg.Server.SocketPath
	}
	return d
}

// clientService adapts the daemon client to daemon.Service so commands
// run the same way against the daemon or a local engine.
type clientService struct {
	client *daemon.Client
}

func (c clientService) Search(ctx context.Context, query string, k int) (*search.Result, error) {
	return c.client.Search(ctx, daemon.SearchParams{Query: query, K: k})
}

func (c clientService) Add(ctx context.Context, content []byte, filename, mediaType string) (string, error) {
	return c.client.Add(ctx, daemon.AddParams{Filename: filename, MediaType: mediaType, Content: content})
}

func (c clientService) Remove(ctx context.Context, id string) error {
	return c.client.Remove(ctx, id)
}

func (c clientService) List(ctx context.Context) ([]registry.SourceInfo, error) {
	res, err := c.client.List(ctx)
	if err != nil {
		return nil, err
	}
	return res.Sources, nil
}

func (c clientService) Status(ctx context.Context) (*search.Status, error) {
	res, err := c.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	if res.Engine == nil {
		return nil, fmt.Errorf("daemon reported no engine status")
	}
	return res.Engine, nil
}

// openService returns the running daemon when there is one, otherwise a
// local engine. local forces the latter.
func openService(ctx context.Context, cfg *config.Config, local bool) (daemon.Service, func(), error) {
	if !local {
		client := daemon.NewClient(daemonConfig(cfg))
		if client.IsRunning() {
			slog.Debug("using_daemon", slog.String("socket", cfg.Server.SocketPath))
			return clientService{client: client}, func() {}, nil
		}
	}

	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() {
		if err := engine.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}, nil
}
