package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// fakeRerankServer scores documents by length, returned in reverse index order.
func fakeRerankServer(t *testing.T, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			if code := status.Load(); code != 0 {
				w.WriteHeader(int(code))
				return
			}
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			type item struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}
			results := make([]item, 0, len(req.Documents))
			for i := len(req.Documents) - 1; i >= 0; i-- {
				results = append(results, item{Index: i, Score: float64(len(req.Documents[i]))})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPScorer_MapsScoresByIndex(t *testing.T) {
	var status atomic.Int32
	srv := fakeRerankServer(t, &status)

	s, err := NewHTTPScorer(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer s.Close()

	scores, err := s.Score(context.Background(), "q", []string{"a", "abc", "ab"})

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 2}, scores)
	assert.Equal(t, DefaultModel, s.Name())
	assert.True(t, s.Available(context.Background()))
}

func TestHTTPScorer_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPScorer(context.Background(), HTTPConfig{Endpoint: srv.URL})

	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeScorerUnavailable, terrors.GetCode(err))
}

func TestHTTPScorer_ServerErrorOpensCircuit(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := fakeRerankServer(t, &status)

	s, err := NewHTTPScorer(context.Background(), HTTPConfig{
		Endpoint:     srv.URL,
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = s.Score(context.Background(), "q", []string{"a"})
		require.Error(t, err)
		assert.True(t, terrors.IsKind(err, terrors.KindIndexUnavailable))
	}

	status.Store(0)
	_, err = s.Score(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, terrors.ErrCircuitOpen)
}

func TestHTTPScorer_StageFallsBackToLexical(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := fakeRerankServer(t, &status)

	remote, err := NewHTTPScorer(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	fallback := &tableScorer{scores: map[string]float64{"one": 1, "two": 2}}
	stage := newStage(t, NewFallbackScorer(remote, fallback))

	results, err := stage.Rerank(context.Background(), "q", []string{"one", "two"}, 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, Texts(results))
}

func TestHTTPScorer_ClosedRejects(t *testing.T) {
	var status atomic.Int32
	srv := fakeRerankServer(t, &status)
	s, err := NewHTTPScorer(context.Background(), HTTPConfig{Endpoint: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

// countingRerankServer fails every /rerank call with status and counts them.
func countingRerankServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rerank" {
			calls.Add(1)
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPScorer_FailureIsNotRetried(t *testing.T) {
	// Given: a reranker answering every request with a retryable 503
	var calls atomic.Int32
	srv := countingRerankServer(t, http.StatusServiceUnavailable, &calls)
	s, err := NewHTTPScorer(context.Background(), HTTPConfig{Endpoint: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)
	defer s.Close()

	// When: scoring a query
	_, err = s.Score(context.Background(), "q", []string{"a", "b"})

	// Then: the error surfaces after exactly one request
	require.Error(t, err)
	assert.True(t, terrors.IsRetryable(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestHTTPScorer_PacesRequests(t *testing.T) {
	// Given: a scorer limited to one request per hour with no burst headroom
	var status atomic.Int32
	srv := fakeRerankServer(t, &status)
	s, err := NewHTTPScorer(context.Background(), HTTPConfig{
		Endpoint:          srv.URL,
		SkipHealthCheck:   true,
		RequestsPerSecond: 1.0 / 3600,
		Burst:             1,
	})
	require.NoError(t, err)
	defer s.Close()

	// When: the first request spends the only token
	_, err = s.Score(context.Background(), "q", []string{"a"})
	require.NoError(t, err)

	// Then: the next request waits and gives up with its context
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Score(ctx, "q", []string{"a"})
	assert.Error(t, err)
}
