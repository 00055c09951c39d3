package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/store"
)

// tableScorer returns fixed scores keyed by passage text.
type tableScorer struct {
	scores map[string]float64
	err    error
	calls  [][]string
}

func (s *tableScorer) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	s.calls = append(s.calls, append([]string(nil), passages...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s.scores[p]
	}
	return out, nil
}

func (s *tableScorer) Name() string                     { return "table" }
func (s *tableScorer) Available(_ context.Context) bool { return s.err == nil }
func (s *tableScorer) Close() error                     { return nil }

func newStage(t *testing.T, s Scorer) *Stage {
	t.Helper()
	stage, err := NewStage(s)
	require.NoError(t, err)
	return stage
}

func TestNewStage_RequiresScorer(t *testing.T) {
	_, err := NewStage(nil)
	assert.Error(t, err)
}

func TestRerank_OrdersByScoreAndTruncates(t *testing.T) {
	scorer := &tableScorer{scores: map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5, "d": 0.7}}
	stage := newStage(t, scorer)

	results, err := stage.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"}, 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, Texts(results))
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestRerank_LengthIsMinOfKAndUnique(t *testing.T) {
	scorer := &tableScorer{scores: map[string]float64{}}
	stage := newStage(t, scorer)

	results, err := stage.Rerank(context.Background(), "q", []string{"x", "y", "x", "y", "x"}, 5)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRerank_DeduplicatesBeforeScoring(t *testing.T) {
	scorer := &tableScorer{scores: map[string]float64{"x": 1, "y": 2}}
	stage := newStage(t, scorer)

	_, err := stage.Rerank(context.Background(), "q", []string{"x", "y", "x"}, 3)

	require.NoError(t, err)
	require.Len(t, scorer.calls, 1)
	assert.Equal(t, []string{"x", "y"}, scorer.calls[0])
}

func TestRerank_TiesKeepFirstSeenOrder(t *testing.T) {
	scorer := &tableScorer{scores: map[string]float64{"p": 1, "q": 1, "r": 1}}
	stage := newStage(t, scorer)

	results, err := stage.Rerank(context.Background(), "q", []string{"r", "p", "q", "p"}, 3)

	require.NoError(t, err)
	assert.Equal(t, []string{"r", "p", "q"}, Texts(results))
}

func TestRerank_EmptyInputs(t *testing.T) {
	scorer := &tableScorer{}
	stage := newStage(t, scorer)

	results, err := stage.Rerank(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = stage.Rerank(context.Background(), "q", []string{"a"}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, scorer.calls)
}

func TestRerank_ScorerFailureIsIndexUnavailable(t *testing.T) {
	stage := newStage(t, &tableScorer{err: errors.New("connection refused")})

	_, err := stage.Rerank(context.Background(), "q", []string{"a"}, 1)

	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindIndexUnavailable))
	assert.Equal(t, terrors.ErrCodeScorerUnavailable, terrors.GetCode(err))
}

func TestRerank_ScoreCountMismatchIsInternal(t *testing.T) {
	stage := newStage(t, scorerFunc(func(passages []string) ([]float64, error) {
		return []float64{1}, nil
	}))

	_, err := stage.Rerank(context.Background(), "q", []string{"a", "b"}, 2)

	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeInternal, terrors.GetCode(err))
}

type scorerFunc func(passages []string) ([]float64, error)

func (f scorerFunc) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	return f(passages)
}
func (f scorerFunc) Name() string                     { return "func" }
func (f scorerFunc) Available(_ context.Context) bool { return true }
func (f scorerFunc) Close() error                     { return nil }

func TestLexicalScorer_PrefersCoverage(t *testing.T) {
	analyzer, err := store.DefaultAnalyzer()
	require.NoError(t, err)
	scorer := NewLexicalScorer(analyzer)

	scores, err := scorer.Score(context.Background(), "capital of France", []string{
		"Paris is the capital of France.",
		"France has many rivers.",
		"Mount Everest is the highest peak.",
	})

	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.Zero(t, scores[2])
}

func TestLexicalScorer_StopWordQueryScoresZero(t *testing.T) {
	analyzer, err := store.DefaultAnalyzer()
	require.NoError(t, err)
	scorer := NewLexicalScorer(analyzer)

	scores, err := scorer.Score(context.Background(), "the of and", []string{"the cat and the hat"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0}, scores)
}

func TestFallbackScorer(t *testing.T) {
	primary := &tableScorer{err: errors.New("down")}
	fallback := &tableScorer{scores: map[string]float64{"a": 3}}
	f := NewFallbackScorer(primary, fallback)

	scores, err := f.Score(context.Background(), "q", []string{"a"})

	require.NoError(t, err)
	assert.Equal(t, []float64{3}, scores)
	assert.Len(t, primary.calls, 1)
	assert.Len(t, fallback.calls, 1)
	assert.Equal(t, "table+table", f.Name())
	assert.True(t, f.Available(context.Background()))
}

func TestFallbackScorer_PrimarySucceeds(t *testing.T) {
	primary := &tableScorer{scores: map[string]float64{"a": 1}}
	fallback := &tableScorer{}
	f := NewFallbackScorer(primary, fallback)

	_, err := f.Score(context.Background(), "q", []string{"a"})

	require.NoError(t, err)
	assert.Empty(t, fallback.calls)
}
