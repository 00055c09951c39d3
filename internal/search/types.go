// Package search implements the hybrid retrieval orchestrator: ingestion
// into the lexical and dense indexes, removal, and rerank-fused search.
package search

import (
	"context"
	"time"

	"github.com/wwaihoe/TailorED/internal/extract"
	"github.com/wwaihoe/TailorED/internal/store"
	"github.com/wwaihoe/TailorED/internal/telemetry"
)

// DenseIndex is the durable passage store the engine writes through.
// *store.PassageStore implements it.
type DenseIndex interface {
	Insert(ctx context.Context, recs []store.Record) ([]int64, error)
	DeleteSource(ctx context.Context, sourceID string) (int64, error)
	NearestK(ctx context.Context, query []float32, k int, maxDistance float32) ([]store.DenseHit, error)
	AggregateLengths(ctx context.Context) (map[string]int, error)
	Sources(ctx context.Context) ([]store.StoredSource, error)
	Count(ctx context.Context) (int, error)
	Dimensions() int
	Path() string
	Close() error
}

// Extractor turns uploaded bytes into plain text.
// *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, mt extract.MediaType) (string, error)
}

// Result is the outcome of one search.
//
// Filenames and SourceIDs cover every source touched by either retrieval
// path, including sources whose passages were cut by reranking.
type Result struct {
	Passages  []string  `json:"passages"`
	Scores    []float64 `json:"scores,omitempty"`
	Filenames []string  `json:"filenames"`
	SourceIDs []string  `json:"source_ids"`
}

// Status summarizes engine state.
type Status struct {
	Sources         int    `json:"sources"`
	Passages        int    `json:"passages"`
	LexicalPassages int    `json:"lexical_passages"`
	StoredPassages  int    `json:"stored_passages"`
	StorePath       string `json:"store_path"`
	EmbedderModel   string `json:"embedder_model"`
	Dimensions      int    `json:"dimensions"`
	Scorer          string `json:"scorer"`

	// Queries is set when the engine records query metrics.
	Queries *telemetry.Snapshot `json:"queries,omitempty"`
}

// Config configures the engine.
type Config struct {
	// DefaultK is used when a search asks for k <= 0 (default: 3).
	DefaultK int

	// MaxK is the largest k a search accepts (default: 100). Larger values
	// fail with InvalidInput rather than being truncated.
	MaxK int

	// MaxDistance drops dense hits farther than it. 0 disables the cutoff.
	MaxDistance float32

	// MinScore drops reranked passages scoring at or below it. The zero
	// value drops passages the scorer found no relevance in, so a query
	// matching nothing live returns no passages.
	MinScore float64

	// SearchTimeout bounds one search, including reranking (default: 30s).
	SearchTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultK:      3,
		MaxK:          100,
		SearchTimeout: 30 * time.Second,
	}
}
