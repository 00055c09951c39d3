package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

const (
	DefaultEndpoint = "http://localhost:8080"
	DefaultModel    = "BAAI/bge-reranker-base"
	DefaultTimeout  = 30 * time.Second
)

// HTTPConfig configures a remote cross-encoder.
type HTTPConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration

	// RequestsPerSecond paces /rerank calls; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	// MaxFailures consecutive failures open the circuit for ResetTimeout.
	MaxFailures  int
	ResetTimeout time.Duration

	SkipHealthCheck bool
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// HTTPScorer calls a /rerank endpoint that scores a query against a list
// of documents and returns {index, score} pairs.
type HTTPScorer struct {
	client  *http.Client
	config  HTTPConfig
	breaker *terrors.CircuitBreaker
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

// NewHTTPScorer builds the client and, unless skipped, checks /health.
func NewHTTPScorer(ctx context.Context, cfg HTTPConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	s := &HTTPScorer{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
		breaker: terrors.NewCircuitBreaker("reranker",
			terrors.WithMaxFailures(cfg.MaxFailures),
			terrors.WithResetTimeout(cfg.ResetTimeout)),
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.healthCheck(checkCtx); err != nil {
			return nil, err
		}
	}

	slog.Debug("http_scorer_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))
	return s, nil
}

func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return terrors.New(terrors.ErrCodeScorerUnavailable, "cannot reach reranker", err).
			WithDetail("endpoint", s.config.Endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return terrors.New(terrors.ErrCodeScorerUnavailable,
			fmt.Sprintf("reranker unhealthy (status %d): %s", resp.StatusCode, body), nil)
	}
	return nil
}

// Score sends one request for all passages. It runs on the query path, so a
// failure is returned as is and never retried.
func (s *HTTPScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("scorer is closed")
	}
	if len(passages) == 0 {
		return []float64{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if !s.breaker.Allow() {
		return nil, terrors.New(terrors.ErrCodeScorerUnavailable, "reranker circuit open", terrors.ErrCircuitOpen)
	}

	scores, err := s.scoreOnce(ctx, query, passages)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	s.breaker.RecordSuccess()
	return scores, nil
}

func (s *HTTPScorer) scoreOnce(ctx context.Context, query string, passages []string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{Query: query, Documents: passages, Model: s.config.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, terrors.New(terrors.ErrCodeNetworkTimeout, "rerank request timed out", err)
		}
		return nil, terrors.New(terrors.ErrCodeScorerUnavailable, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := terrors.ErrCodeInternal
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = terrors.ErrCodeScorerUnavailable
		}
		return nil, terrors.New(code, fmt.Sprintf("rerank failed (status %d): %s", resp.StatusCode, msg), nil)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(out.Results) != len(passages) {
		return nil, fmt.Errorf("reranker returned %d results for %d documents", len(out.Results), len(passages))
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(passages) || seen[r.Index] {
			return nil, fmt.Errorf("reranker returned invalid index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}

	slog.Debug("rerank_scored",
		slog.Int("documents", len(passages)),
		slog.Duration("duration", time.Since(start)))
	return scores, nil
}

// Name returns the model name.
func (s *HTTPScorer) Name() string { return s.config.Model }

// Available reports whether the circuit is closed and /health answers.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	return s.breaker.Allow() && s.healthCheck(ctx) == nil
}

// Close drops pooled connections.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.client.CloseIdleConnections()
	}
	return nil
}

var _ Scorer = (*HTTPScorer)(nil)
