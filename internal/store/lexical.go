package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	index "github.com/blevesearch/bleve_index_api"
)

// lexicalField is the document field passages are indexed under.
const lexicalField = "text"

// positionWidth zero-pads document ids so that sorting by _id is corpus order.
const positionWidth = 10

// LexicalIndex is a BM25 index over a flat passage corpus, backed by an
// in-memory bleve index.
//
// The index is never patched: Rebuild builds a fresh bleve index for the
// whole corpus and swaps it in, and TopK scores against whichever index was
// current when it started. BM25 uses bleve's k1=1.2 and b=0.75.
type LexicalIndex struct {
	mu    sync.RWMutex
	index bleve.Index // nil when empty
	docs  []string
}

// lexicalDoc is the document shape handed to bleve.
type lexicalDoc struct {
	Text string `json:"text"`
}

// NewLexicalIndex returns an empty index.
func NewLexicalIndex() (*LexicalIndex, error) {
	// fail early on a bad mapping rather than at the first Rebuild
	if _, err := newLexicalMapping(); err != nil {
		return nil, err
	}
	return &LexicalIndex{}, nil
}

// newLexicalMapping creates the bleve mapping: BM25 scoring, the English
// analyzer as default, nothing stored.
func newLexicalMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(EnglishAnalyzerName, englishAnalyzerConfig()); err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = EnglishAnalyzerName
	m.ScoringModel = index.BM25Scoring
	m.StoreDynamic = false
	m.DocValuesDynamic = false
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lexical mapping: %w", err)
	}
	return m, nil
}

// Rebuild indexes corpus into a new bleve index and replaces the previous
// one. An empty corpus resets the index. On error the previous index is
// kept.
func (l *LexicalIndex) Rebuild(corpus []string) error {
	if len(corpus) == 0 {
		l.Reset()
		return nil
	}

	m, err := newLexicalMapping()
	if err != nil {
		return err
	}
	// scorch with an empty path stays in memory and supports BM25 field
	// statistics, which the upsidedown mem-only index does not
	idx, err := bleve.NewUsing("", m, bleve.Config.DefaultIndexType, bleve.Config.DefaultMemKVStore, nil)
	if err != nil {
		return fmt.Errorf("failed to create lexical index: %w", err)
	}

	batch := idx.NewBatch()
	for i, doc := range corpus {
		if err := batch.Index(positionID(i), lexicalDoc{Text: doc}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("failed to index passage %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	l.mu.Lock()
	old := l.index
	l.index = idx
	l.docs = append([]string(nil), corpus...)
	l.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Reset empties the index.
func (l *LexicalIndex) Reset() {
	l.mu.Lock()
	old := l.index
	l.index = nil
	l.docs = nil
	l.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// Len returns the number of indexed passages.
func (l *LexicalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// TopK returns up to k passages with a positive BM25 score for query,
// highest first. Equal scores keep corpus order. k is clamped to the
// corpus size and an empty index returns no hits.
func (l *LexicalIndex) TopK(ctx context.Context, query string, k int) ([]LexicalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// held for the whole search so Rebuild cannot close the index under us
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.index == nil || k <= 0 {
		return []LexicalHit{}, nil
	}
	if k > len(l.docs) {
		k = len(l.docs)
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(lexicalField)

	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.SortBy([]string{"-_score", "_id"})

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		if h.Score <= 0 {
			continue
		}
		pos, err := strconv.Atoi(h.ID)
		if err != nil || pos < 0 || pos >= len(l.docs) {
			return nil, fmt.Errorf("unexpected lexical document id %q", h.ID)
		}
		hits = append(hits, LexicalHit{Position: pos, Text: l.docs[pos], Score: h.Score})
	}
	return hits, nil
}

func positionID(pos int) string {
	return fmt.Sprintf("%0*d", positionWidth, pos)
}
