package embed

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

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose 768-d text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the startup health check.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize is the HTTP connection pool size.
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides detection; 0 asks the model once at startup.
	Dimensions int

	BatchSize int

	// Timeout bounds each request.
	Timeout time.Duration

	Retry terrors.RetryConfig

	// SkipHealthCheck skips the startup model check (tests).
	SkipHealthCheck bool
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

// NewOllamaEmbedder connects to Ollama, checks the model is pulled and
// detects its dimension unless one is configured.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = terrors.DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
		defer cancel()
		if err := e.checkModel(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}

	if e.dims == 0 {
		vecs, err := e.embedOnce(ctx, []string{"dimension detection"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
	}

	slog.Debug("ollama_embedder_ready",
		slog.String("host", cfg.Host),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", e.dims))
	return e, nil
}

func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return terrors.New(terrors.ErrCodeEmbedderUnavailable, "cannot reach Ollama", err).
			WithDetail("host", e.config.Host).
			WithSuggestion("start Ollama with `ollama serve` or set embeddings.provider to static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return terrors.New(terrors.ErrCodeEmbedderUnavailable,
			fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, body), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == strings.Split(want, ":")[0] {
			return nil
		}
	}
	return terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedding model not found: "+e.config.Model, nil).
		WithSuggestion("run `ollama pull " + e.config.Model + "`")
}

// Embed generates the embedding for a single text. It makes one attempt:
// queries surface failures to the caller instead of retrying.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, terrors.RetryConfig{})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of BatchSize, retrying each chunk per
// the configured policy. Blank texts map to the zero vector without a
// request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, e.config.Retry)
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string, retry terrors.RetryConfig) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	out := make([][]float32, len(texts))
	var idx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
	}

	for start := 0; start < len(idx); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(idx))
		batch := make([]string, 0, end-start)
		for _, i := range idx[start:end] {
			batch = append(batch, texts[i])
		}

		vecs, err := terrors.RetryWithResult(ctx, retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		for j, i := range idx[start:end] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

// embedOnce performs one bounded /api/embed request.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, terrors.New(terrors.ErrCodeNetworkTimeout, "embedding request timed out", err)
		}
		return nil, terrors.New(terrors.ErrCodeEmbedderUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		code := terrors.ErrCodeInternal
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = terrors.ErrCodeEmbedderUnavailable
		}
		return nil, terrors.New(code, fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, msg), nil)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	for _, v := range result.Embeddings {
		if e.dims != 0 && len(v) != e.dims {
			return nil, terrors.ShapeMismatch(e.dims, len(v))
		}
	}
	return result.Embeddings, nil
}

// Dimensions returns the detected or configured vector size.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the configured model.
func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available pings /api/tags.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()
	return e.checkModel(ctx) == nil
}

// Close drops pooled connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
