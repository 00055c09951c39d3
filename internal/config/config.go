// Package config loads tailored's layered YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// ProjectConfigName is the per-directory config file.
const ProjectConfigName = ".tailored.yaml"

// Config is the complete tailored configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
}

// ChunkingConfig sizes passages, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	// K is the default number of passages returned.
	K    int `yaml:"k" json:"k"`
	MaxK int `yaml:"max_k" json:"max_k"`

	// MaxDistance drops dense hits farther than it. 0 keeps every hit.
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`

	// MinScore drops reranked passages scoring at or below it.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the embedder.
type EmbeddingsConfig struct {
	// Provider is ollama, static or auto.
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`

	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// RerankerConfig configures the second-pass scorer.
type RerankerConfig struct {
	// Provider is lexical (local) or http (cross-encoder service).
	Provider    string        `yaml:"provider" json:"provider"`
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	Model       string        `yaml:"model" json:"model"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxFailures int           `yaml:"max_failures" json:"max_failures"`

	// RequestsPerSecond paces cross-encoder calls; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// ExtractionConfig configures the text extraction collaborators.
type ExtractionConfig struct {
	PDFCommand      string        `yaml:"pdf_command" json:"pdf_command"`
	VisionHost      string        `yaml:"vision_host" json:"vision_host"`
	VisionModel     string        `yaml:"vision_model" json:"vision_model"`
	WhisperEndpoint string        `yaml:"whisper_endpoint" json:"whisper_endpoint"`
	WhisperModel    string        `yaml:"whisper_model" json:"whisper_model"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	MaxUploadMB     int           `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// StoreConfig locates and tunes the passage store.
type StoreConfig struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	ANN      bool   `yaml:"ann" json:"ann"`
	HNSWM    int    `yaml:"hnsw_m" json:"hnsw_m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

// WatcherConfig configures inbox auto-ingest.
type WatcherConfig struct {
	Debounce   time.Duration `yaml:"debounce" json:"debounce"`
	Extensions []string      `yaml:"extensions" json:"extensions"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			Size:    8000,
			Overlap: 2000,
		},
		Search: SearchConfig{
			K:       3,
			MaxK:    100,
			Timeout: 30 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "auto",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 768,
			BatchSize:  32,
			Timeout:    60 * time.Second,
			CacheSize:  4096,
		},
		Reranker: RerankerConfig{
			Provider:    "lexical",
			Endpoint:    "http://localhost:8080",
			Model:       "BAAI/bge-reranker-base",
			Timeout:     30 * time.Second,
			MaxFailures: 5,
		},
		Extraction: ExtractionConfig{
			PDFCommand:   "pdftotext",
			VisionModel:  "llava",
			WhisperModel: "whisper-1",
			Timeout:      2 * time.Minute,
			MaxUploadMB:  64,
		},
		Store: StoreConfig{
			DataDir:  DefaultDataDir(),
			HNSWM:    16,
			EfSearch: 64,
		},
		Server: ServerConfig{
			SocketPath: filepath.Join(DefaultHomeDir(), "tailored.sock"),
			LogLevel:   "info",
		},
		Watcher: WatcherConfig{
			Debounce:   500 * time.Millisecond,
			Extensions: []string{".txt", ".md", ".pdf", ".png", ".jpg", ".jpeg", ".mp3", ".wav"},
		},
	}
}

// DefaultHomeDir returns ~/.tailored.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tailored")
	}
	return filepath.Join(home, ".tailored")
}

// DefaultDataDir returns ~/.tailored/data.
func DefaultDataDir() string {
	return filepath.Join(DefaultHomeDir(), "data")
}

// StorePath is the passage database file inside the data directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.Store.DataDir, "passages.db")
}

// UserConfigExists reports whether the user config file is present.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/tailored/config.yaml, or
// ~/.config/tailored/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tailored", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tailored", "config.yaml")
	}
	return filepath.Join(home, ".config", "tailored", "config.yaml")
}

// Load builds the configuration for dir, in increasing precedence:
//  1. defaults
//  2. user config (GetUserConfigPath)
//  3. project config (.tailored.yaml in dir)
//  4. TAILORED_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, terrors.ConfigError("failed to load user config", err)
	}
	if dir != "" {
		if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigName)); err != nil {
			return nil, terrors.ConfigError("failed to load project config", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, terrors.ConfigError("invalid environment override", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, terrors.ConfigError("invalid configuration", err).
			WithSuggestion("check " + GetUserConfigPath() + " and " + ProjectConfigName)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep what earlier layers set. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies TAILORED_* variables. Malformed numbers are
// reported rather than ignored.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"TAILORED_EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"TAILORED_EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"TAILORED_OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"TAILORED_RERANKER_PROVIDER":   &c.Reranker.Provider,
		"TAILORED_RERANKER_ENDPOINT":   &c.Reranker.Endpoint,
		"TAILORED_VISION_HOST":         &c.Extraction.VisionHost,
		"TAILORED_WHISPER_ENDPOINT":    &c.Extraction.WhisperEndpoint,
		"TAILORED_DATA_DIR":            &c.Store.DataDir,
		"TAILORED_SOCKET":              &c.Server.SocketPath,
		"TAILORED_LOG_LEVEL":           &c.Server.LogLevel,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TAILORED_CHUNK_SIZE":            &c.Chunking.Size,
		"TAILORED_CHUNK_OVERLAP":         &c.Chunking.Overlap,
		"TAILORED_SEARCH_K":              &c.Search.K,
		"TAILORED_EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("TAILORED_MAX_DISTANCE"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("TAILORED_MAX_DISTANCE: %w", err)
		}
		c.Search.MaxDistance = f
	}
	if v := os.Getenv("TAILORED_ANN"); v != "" {
		c.Store.ANN = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Search.K <= 0 {
		return fmt.Errorf("search.k must be positive, got %d", c.Search.K)
	}
	if c.Search.MaxK < c.Search.K {
		return fmt.Errorf("search.max_k (%d) must be at least search.k (%d)", c.Search.MaxK, c.Search.K)
	}
	if c.Search.MaxDistance < 0 {
		return fmt.Errorf("search.max_distance must be non-negative, got %g", c.Search.MaxDistance)
	}
	if c.Reranker.RequestsPerSecond < 0 {
		return fmt.Errorf("reranker.requests_per_second must be non-negative, got %g", c.Reranker.RequestsPerSecond)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "", "auto", "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama', 'static' or 'auto', got %s", c.Embeddings.Provider)
	}
	switch strings.ToLower(c.Reranker.Provider) {
	case "", "lexical", "http":
	default:
		return fmt.Errorf("reranker.provider must be 'lexical' or 'http', got %s", c.Reranker.Provider)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn' or 'error', got %s", c.Server.LogLevel)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}

// WriteYAML writes the configuration to path, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
