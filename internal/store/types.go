// Package store holds the retrieval indexes: the in-memory bleve BM25 lexical
// index and the durable SQLite passage store that backs dense search.
package store

import (
	"fmt"
	"time"
)

// Record is one persisted passage with its embedding.
type Record struct {
	ID        int64 // assigned on insert, ascending in insertion order
	SourceID  string
	Filename  string
	Position  int // passage index within its source
	Text      string
	Length    int // character count of Text
	Embedding []float32
	CreatedAt time.Time
}

// DenseHit is one nearest-neighbour result.
type DenseHit struct {
	RecordID int64
	SourceID string
	Filename string
	Text     string
	Distance float32
}

// LexicalHit is one BM25 result.
type LexicalHit struct {
	Position int // index into the corpus passed to Rebuild
	Text     string
	Score    float64
}

// StoredSource groups persisted passages by source, in insertion order.
type StoredSource struct {
	SourceID string
	Filename string
	Passages []string
}

// PassageStoreConfig configures the durable passage store.
type PassageStoreConfig struct {
	// Path to the SQLite file. Empty means in-memory.
	Path string

	// Dimensions every embedding must have.
	Dimensions int

	// Model names the embedder writing to the store. It is pinned on first
	// open like Dimensions; empty skips the check.
	Model string

	// ANN enables the in-memory HNSW accelerator for NearestK.
	ANN bool

	// HNSW parameters, used when ANN is set.
	M        int
	EfSearch int
}

// ErrDimensionMismatch is returned for an embedding of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
