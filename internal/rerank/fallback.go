package rerank

import (
	"context"
	"log/slog"
)

// FallbackScorer uses primary and, when it fails, scores with fallback
// instead of failing the search.
type FallbackScorer struct {
	primary  Scorer
	fallback Scorer
}

// NewFallbackScorer chains two scorers.
func NewFallbackScorer(primary, fallback Scorer) *FallbackScorer {
	return &FallbackScorer{primary: primary, fallback: fallback}
}

// Score tries primary first.
func (f *FallbackScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores, err := f.primary.Score(ctx, query, passages)
	if err == nil {
		return scores, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	slog.Warn("rerank_fallback",
		slog.String("primary", f.primary.Name()),
		slog.String("fallback", f.fallback.Name()),
		slog.String("error", err.Error()))
	return f.fallback.Score(ctx, query, passages)
}

func (f *FallbackScorer) Name() string { return f.primary.Name() + "+" + f.fallback.Name() }

func (f *FallbackScorer) Available(ctx context.Context) bool {
	return f.primary.Available(ctx) || f.fallback.Available(ctx)
}

func (f *FallbackScorer) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}

var _ Scorer = (*FallbackScorer)(nil)
