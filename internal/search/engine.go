package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/wwaihoe/TailorED/internal/chunk"
	"github.com/wwaihoe/TailorED/internal/embed"
	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/extract"
	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/rerank"
	"github.com/wwaihoe/TailorED/internal/store"
	"github.com/wwaihoe/TailorED/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine owns the lexical index, the dense index and the source registry
// and keeps them consistent.
//
// Add and Remove are serialized by mu. Search holds the read side only
// while reading the lexical index and resolving its hits; the dense path
// relies on the store's own locking.
type Engine struct {
	dense     DenseIndex
	lexical   *store.LexicalIndex
	registry  *registry.Registry
	splitter  *chunk.Splitter
	embedder  embed.Embedder
	stage     *rerank.Stage
	extractor Extractor
	metrics   *telemetry.QueryMetrics
	config    Config

	mu sync.RWMutex
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithExtractor replaces the default extractor (text and PDF only).
func WithExtractor(x Extractor) EngineOption {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithRegistry supplies a prebuilt registry. By default the engine
// creates one backed by the dense index's length aggregation.
func WithRegistry(r *registry.Registry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithQueryMetrics records every search in m and reports it in Status.
func WithQueryMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine wires the engine. Returns ErrNilDependency if a required
// dependency is missing.
func NewEngine(
	dense DenseIndex,
	lexical *store.LexicalIndex,
	splitter *chunk.Splitter,
	embedder embed.Embedder,
	stage *rerank.Stage,
	config Config,
	opts ...EngineOption,
) (*Engine, error) {
	if dense == nil {
		return nil, fmt.Errorf("%w: dense index is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if splitter == nil {
		return nil, fmt.Errorf("%w: splitter is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if stage == nil {
		return nil, fmt.Errorf("%w: rerank stage is required", ErrNilDependency)
	}
	if embedder.Dimensions() != dense.Dimensions() {
		return nil, terrors.ShapeMismatch(dense.Dimensions(), embedder.Dimensions()).
			WithDetail("embedder", embedder.ModelName()).
			WithSuggestion("Use an embedder with the store's dimensions or point store.path at a new file")
	}

	def := DefaultConfig()
	if config.DefaultK <= 0 {
		config.DefaultK = def.DefaultK
	}
	if config.MaxK <= 0 {
		config.MaxK = def.MaxK
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = def.SearchTimeout
	}

	e := &Engine{
		dense:     dense,
		lexical:   lexical,
		splitter:  splitter,
		embedder:  embedder,
		stage:     stage,
		extractor: extract.New(extract.DefaultConfig()),
		config:    config,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.New(dense)
	}
	return e, nil
}

// Recover repopulates the registry and lexical index from the dense
// index. It must run once at startup before the engine serves requests.
func (e *Engine) Recover(ctx context.Context) error {
	start := time.Now()

	sources, err := e.dense.Sources(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range sources {
		e.registry.Restore(s.SourceID, s.Filename, s.Passages)
	}
	if err := e.rebuildLexical(); err != nil {
		return err
	}

	slog.Info("engine_recovered",
		slog.Int("sources", len(sources)),
		slog.Int("passages", e.lexical.Len()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// AddText ingests plain text under filename.
func (e *Engine) AddText(ctx context.Context, text, filename string) (string, error) {
	return e.Add(ctx, []byte(text), filename, string(extract.MediaText))
}

// Add extracts, chunks, embeds and indexes content, returning the new
// source id. mediaType may be empty, in which case the filename extension
// decides. On any failure the source is left absent from every index.
func (e *Engine) Add(ctx context.Context, content []byte, filename, mediaType string) (string, error) {
	start := time.Now()

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", terrors.ValidationError("filename is required", nil)
	}

	mt := extract.DetectMediaType(filename, mediaType)
	text, err := e.extractor.Extract(ctx, content, mt)
	if err != nil {
		if _, ok := terrors.As(err); !ok {
			err = terrors.ExtractionError("extraction failed", err)
		}
		return "", err
	}

	passages := e.splitter.Split(text)
	if len(passages) == 0 {
		return "", terrors.ExtractionError("no passages produced", nil).WithDetail("filename", filename)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.registry.Register(filename)
	if err := e.index(ctx, id, filename, passages); err != nil {
		e.rollback(ctx, id, err)
		return "", err
	}

	e.registry.Attach(id, passages)
	if err := e.rebuildLexical(); err != nil {
		e.rollback(ctx, id, err)
		if rerr := e.rebuildLexical(); rerr != nil {
			slog.Error("lexical_restore_failed", slog.String("error", rerr.Error()))
		}
		return "", err
	}

	slog.Info("source_added",
		slog.String("source_id", id),
		slog.String("filename", filename),
		slog.String("media_type", string(mt)),
		slog.Int("passages", len(passages)),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

// index embeds passages and writes them to the dense index in one batch.
func (e *Engine) index(ctx context.Context, id, filename string, passages []string) error {
	vectors, err := e.embedder.EmbedBatch(ctx, passages)
	if err != nil {
		if _, ok := terrors.As(err); !ok {
			err = terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedding failed", err).
				WithDetail("model", e.embedder.ModelName())
		}
		return err
	}
	if len(vectors) != len(passages) {
		return terrors.InternalError(
			fmt.Sprintf("embedder returned %d vectors for %d passages", len(vectors), len(passages)), nil)
	}

	recs := make([]store.Record, len(passages))
	for i, p := range passages {
		recs[i] = store.Record{
			SourceID:  id,
			Filename:  filename,
			Position:  i,
			Text:      p,
			Length:    utf8.RuneCountInString(p),
			Embedding: vectors[i],
		}
	}
	_, err = e.dense.Insert(ctx, recs)
	return err
}

// rollback undoes a failed Add. The dense delete runs even if ctx was
// cancelled.
// must hold e.mu
func (e *Engine) rollback(ctx context.Context, id string, cause error) {
	if _, err := e.dense.DeleteSource(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("rollback_failed",
			slog.String("source_id", id),
			slog.String("error", err.Error()))
	}
	e.registry.Forget(id)

	slog.Warn("source_add_failed",
		append([]any{slog.String("source_id", id)}, terrors.LogAttrs(cause)...)...)
}

// Remove deletes a source from every index. Removing an unknown id is a
// no-op.
func (e *Engine) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return terrors.ValidationError("source id is required", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.dense.DeleteSource(ctx, id)
	if err != nil {
		return err
	}

	if !e.registry.Forget(id) {
		slog.Debug("source_remove_noop", slog.String("source_id", id), slog.Int64("orphans", n))
		return nil
	}
	if err := e.rebuildLexical(); err != nil {
		return err
	}

	slog.Info("source_removed", slog.String("source_id", id), slog.Int64("passages", n))
	return nil
}

// rebuildLexical reindexes the registry corpus. On failure the lexical
// index is emptied so it never serves passages of a removed source.
// must hold e.mu
func (e *Engine) rebuildLexical() error {
	if err := e.lexical.Rebuild(e.registry.Corpus()); err != nil {
		e.lexical.Reset()
		return terrors.IndexUnavailable("lexical rebuild failed", err)
	}
	return nil
}

// Search runs lexical and dense retrieval concurrently, reranks the
// combined candidates and returns the top k passages with every source
// either path touched. k <= 0 means DefaultK and k above MaxK is an
// InvalidInput error. Passages scoring at or below MinScore are dropped,
// so fewer than k may come back. Nothing is retried.
func (e *Engine) Search(ctx context.Context, query string, k int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, terrors.New(terrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	start := time.Now()
	res, err := e.search(ctx, query, k, start)
	if e.metrics != nil {
		ev := telemetry.QueryEvent{Query: query, Latency: time.Since(start), Failed: err != nil}
		if res != nil {
			ev.Passages = len(res.Passages)
		}
		e.metrics.Record(ev)
	}
	return res, err
}

func (e *Engine) search(ctx context.Context, query string, k int, start time.Time) (*Result, error) {
	if k <= 0 {
		k = e.config.DefaultK
	}
	if k > e.config.MaxK {
		return nil, terrors.ValidationError(fmt.Sprintf("k must be at most %d, got %d", e.config.MaxK, k), nil).
			WithDetail("max_k", fmt.Sprint(e.config.MaxK))
	}

	if e.registry.Len() == 0 {
		return emptyResult(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	defer cancel()

	var (
		lexical []string
		dense   []string
		touched = make(map[string]string) // source id -> filename
		lexMu   sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.mu.RLock()
		defer e.mu.RUnlock()

		hits, err := e.lexical.TopK(gctx, query, k)
		if err != nil {
			return terrors.IndexUnavailable("lexical search failed", err)
		}
		lexMu.Lock()
		defer lexMu.Unlock()
		for _, h := range hits {
			lexical = append(lexical, h.Text)
			// An unresolved passage still ranks but names no source.
			if src, ok := e.registry.Resolve(h.Text); ok {
				touched[src.ID] = src.Filename
			}
		}
		return nil
	})

	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			if _, ok := terrors.As(err); ok {
				return err
			}
			return terrors.New(terrors.ErrCodeEmbedderUnavailable, "query embedding failed", err)
		}
		hits, err := e.dense.NearestK(gctx, vec, k, e.config.MaxDistance)
		if err != nil {
			return err
		}
		lexMu.Lock()
		defer lexMu.Unlock()
		for _, h := range hits {
			// Rows of a source still being added are not visible yet.
			src, ok := e.registry.Get(h.SourceID)
			if !ok {
				continue
			}
			dense = append(dense, h.Text)
			touched[src.ID] = src.Filename
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Warn("search_failed", terrors.LogAttrs(err)...)
		return nil, err
	}

	candidates := append(lexical, dense...)
	ranked, err := e.stage.Rerank(ctx, query, candidates, k)
	if err != nil {
		slog.Warn("search_failed", terrors.LogAttrs(err)...)
		return nil, err
	}

	res := emptyResult()
	for _, r := range ranked {
		// the rerank cut keeps k, this drops the irrelevant ones among them
		if r.Score <= e.config.MinScore {
			continue
		}
		res.Passages = append(res.Passages, r.Text)
		res.Scores = append(res.Scores, r.Score)
	}
	res.SourceIDs, res.Filenames = sortedSources(touched)

	slog.Debug("search_completed",
		slog.String("query", query),
		slog.Int("k", k),
		slog.Int("lexical_hits", len(lexical)),
		slog.Int("dense_hits", len(dense)),
		slog.Int("results", len(res.Passages)),
		slog.Int("sources", len(res.SourceIDs)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func emptyResult() *Result {
	return &Result{
		Passages:  []string{},
		Filenames: []string{},
		SourceIDs: []string{},
	}
}

// sortedSources returns sorted ids and the sorted set of their filenames.
func sortedSources(touched map[string]string) ([]string, []string) {
	ids := make([]string, 0, len(touched))
	names := make(map[string]struct{}, len(touched))
	for id, name := range touched {
		ids = append(ids, id)
		names[name] = struct{}{}
	}
	sort.Strings(ids)

	filenames := make([]string, 0, len(names))
	for name := range names {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)
	return ids, filenames
}

// List returns every live source with its total passage length.
func (e *Engine) List(ctx context.Context) ([]registry.SourceInfo, error) {
	return e.registry.List(ctx)
}

// Status reports counts and collaborator identities.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	stored, err := e.dense.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Sources:         e.registry.Len(),
		Passages:        e.registry.PassageCount(),
		LexicalPassages: e.lexical.Len(),
		StoredPassages:  stored,
		StorePath:       e.dense.Path(),
		EmbedderModel:   e.embedder.ModelName(),
		Dimensions:      e.embedder.Dimensions(),
		Scorer:          e.stage.Scorer().Name(),
	}
	if e.metrics != nil {
		snap := e.metrics.Snapshot(10)
		st.Queries = &snap
	}
	return st, nil
}

// Close releases the dense index, the embedder and the scorer.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.dense.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.stage.Scorer().Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
