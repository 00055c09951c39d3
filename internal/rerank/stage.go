// Package rerank implements the second-pass ranking stage: deduplicate
// candidate passages, score each against the query with a pairwise scorer,
// and keep the best k.
package rerank

import (
	"context"
	"fmt"
	"sort"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// Scorer rates (query, passage) pairs; higher means more relevant.
// Score returns one value per passage, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
	Name() string
	Available(ctx context.Context) bool
	Close() error
}

// Result is one reranked passage.
type Result struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Stage applies a Scorer to a candidate set.
type Stage struct {
	scorer Scorer
}

// NewStage returns a Stage using scorer.
func NewStage(scorer Scorer) (*Stage, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	return &Stage{scorer: scorer}, nil
}

// Scorer returns the underlying scorer.
func (s *Stage) Scorer() Scorer { return s.scorer }

// Rerank returns at most k unique candidates by descending score.
// Duplicates collapse onto their first occurrence, and equal scores keep
// first-seen order. The result length is min(k, unique candidates).
func (s *Stage) Rerank(ctx context.Context, query string, candidates []string, k int) ([]Result, error) {
	unique := Dedupe(candidates)
	if len(unique) == 0 || k <= 0 {
		return []Result{}, nil
	}

	scores, err := s.scorer.Score(ctx, query, unique)
	if err != nil {
		if _, ok := terrors.As(err); ok {
			return nil, err
		}
		return nil, terrors.New(terrors.ErrCodeScorerUnavailable, "rerank scoring failed", err).
			WithDetail("scorer", s.scorer.Name())
	}
	if len(scores) != len(unique) {
		return nil, terrors.InternalError(
			fmt.Sprintf("scorer %s returned %d scores for %d passages", s.scorer.Name(), len(scores), len(unique)), nil)
	}

	results := make([]Result, len(unique))
	for i, text := range unique {
		results[i] = Result{Text: text, Score: scores[i]}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Dedupe drops repeated passages, keeping first occurrences in order.
func Dedupe(passages []string) []string {
	seen := make(map[string]struct{}, len(passages))
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Texts extracts the passage texts from results.
func Texts(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}
