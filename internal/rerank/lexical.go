package rerank

import (
	"context"

	"github.com/wwaihoe/TailorED/internal/store"
)

// LexicalScorer is a local, model-free scorer: query term hits per
// passage term, with a bonus for covering more distinct query terms.
// It is the default when no cross-encoder endpoint is configured.
type LexicalScorer struct {
	analyzer *store.Analyzer
}

// NewLexicalScorer returns a scorer using analyzer's term pipeline.
func NewLexicalScorer(analyzer *store.Analyzer) *LexicalScorer {
	return &LexicalScorer{analyzer: analyzer}
}

// Score rates each passage against query.
func (l *LexicalScorer) Score(_ context.Context, query string, passages []string) ([]float64, error) {
	qTerms := unique(l.analyzer.Terms(query))
	scores := make([]float64, len(passages))
	if len(qTerms) == 0 {
		return scores, nil
	}

	for i, p := range passages {
		terms := l.analyzer.Terms(p)
		if len(terms) == 0 {
			continue
		}
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}

		hits, covered := 0, 0
		for _, q := range qTerms {
			if n := freq[q]; n > 0 {
				hits += n
				covered++
			}
		}
		coverage := float64(covered) / float64(len(qTerms))
		density := float64(hits) / float64(1+len(terms))
		scores[i] = coverage + density
	}
	return scores, nil
}

func (l *LexicalScorer) Name() string                     { return "lexical" }
func (l *LexicalScorer) Available(_ context.Context) bool { return true }
func (l *LexicalScorer) Close() error                     { return nil }

func unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

var _ Scorer = (*LexicalScorer)(nil)
