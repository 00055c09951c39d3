// Package extract converts uploaded bytes into plain text before chunking.
//
// Text formats pass through. PDFs go through pdftotext, images are captioned
// by an Ollama vision model and audio is transcribed by a whisper-compatible
// server. Every other media type is rejected.
package extract

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// MediaType is a normalized MIME type without parameters.
type MediaType string

const (
	MediaUnknown  MediaType = ""
	MediaText     MediaType = "text/plain"
	MediaMarkdown MediaType = "text/markdown"
	MediaPDF      MediaType = "application/pdf"
	MediaJPEG     MediaType = "image/jpeg"
	MediaPNG      MediaType = "image/png"
	MediaMP3      MediaType = "audio/mpeg"
	MediaWAV      MediaType = "audio/wav"
)

var extensions = map[string]MediaType{
	".txt":      MediaText,
	".text":     MediaText,
	".md":       MediaMarkdown,
	".markdown": MediaMarkdown,
	".pdf":      MediaPDF,
	".jpg":      MediaJPEG,
	".jpeg":     MediaJPEG,
	".png":      MediaPNG,
	".mp3":      MediaMP3,
	".wav":      MediaWAV,
}

// aliases folds the variants browsers and tools send.
var aliases = map[string]MediaType{
	"image/jpg":       MediaJPEG,
	"image/pjpeg":     MediaJPEG,
	"audio/mp3":       MediaMP3,
	"audio/x-wav":     MediaWAV,
	"audio/wave":      MediaWAV,
	"audio/vnd.wave":  MediaWAV,
	"text/x-markdown": MediaMarkdown,
}

// DetectMediaType prefers an explicit type and falls back to the filename
// extension. Generic types like application/octet-stream defer to the
// extension.
func DetectMediaType(filename, explicit string) MediaType {
	if explicit != "" {
		if mt, _, err := mime.ParseMediaType(explicit); err == nil && mt != "application/octet-stream" {
			if alias, ok := aliases[mt]; ok {
				return alias
			}
			return MediaType(mt)
		}
	}
	if mt, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return MediaUnknown
}

// Supported reports whether Extract knows how to handle mt.
func Supported(mt MediaType) bool {
	switch mt {
	case MediaText, MediaMarkdown, MediaPDF, MediaJPEG, MediaPNG, MediaMP3, MediaWAV:
		return true
	}
	return false
}

// Config holds extraction collaborators. An empty VisionHost or
// WhisperEndpoint disables that media family.
type Config struct {
	PDFCommand string

	VisionHost   string
	VisionModel  string
	VisionPrompt string

	WhisperEndpoint string
	WhisperModel    string

	Timeout  time.Duration
	MaxBytes int64
}

const (
	DefaultPDFCommand   = "pdftotext"
	DefaultVisionModel  = "llava"
	DefaultVisionPrompt = "Describe this image in detail, including any text it contains."
	DefaultWhisperModel = "whisper-1"
	DefaultTimeout      = 2 * time.Minute
	DefaultMaxBytes     = 64 << 20
)

// DefaultConfig enables PDF extraction only.
func DefaultConfig() Config {
	return Config{
		PDFCommand:   DefaultPDFCommand,
		VisionModel:  DefaultVisionModel,
		VisionPrompt: DefaultVisionPrompt,
		WhisperModel: DefaultWhisperModel,
		Timeout:      DefaultTimeout,
		MaxBytes:     DefaultMaxBytes,
	}
}

// Extractor dispatches raw bytes to the matching converter.
type Extractor struct {
	cfg    Config
	runner CommandRunner
	client *http.Client
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCommandRunner replaces the process runner used for PDFs.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithHTTPClient replaces the client used for vision and speech calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// New returns an Extractor. Zero fields in cfg take defaults.
func New(cfg Config, opts ...Option) *Extractor {
	def := DefaultConfig()
	if cfg.PDFCommand == "" {
		cfg.PDFCommand = def.PDFCommand
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = def.VisionModel
	}
	if cfg.VisionPrompt == "" {
		cfg.VisionPrompt = def.VisionPrompt
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = def.WhisperModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	cfg.VisionHost = strings.TrimRight(cfg.VisionHost, "/")
	cfg.WhisperEndpoint = strings.TrimRight(cfg.WhisperEndpoint, "/")

	e := &Extractor{
		cfg:    cfg,
		runner: ExecRunner{},
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the plain text of raw. Output that is empty after
// trimming is an extraction failure.
func (e *Extractor) Extract(ctx context.Context, raw []byte, mt MediaType) (string, error) {
	if int64(len(raw)) > e.cfg.MaxBytes {
		return "", terrors.ValidationError("content exceeds maximum upload size", nil).
			WithDetail("max_bytes", formatInt(e.cfg.MaxBytes))
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var (
		text string
		err  error
	)
	switch mt {
	case MediaText, MediaMarkdown:
		text, err = extractText(raw)
	case MediaPDF:
		text, err = e.extractPDF(ctx, raw)
	case MediaJPEG, MediaPNG:
		text, err = e.captionImage(ctx, raw)
	case MediaMP3, MediaWAV:
		text, err = e.transcribeAudio(ctx, raw, mt)
	default:
		return "", terrors.New(terrors.ErrCodeUnsupportedMedia, "unsupported media type: "+string(mt), nil).
			WithSuggestion("Supported types: text, markdown, pdf, jpeg, png, mp3, wav")
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", terrors.ExtractionError("no text could be extracted", nil).
			WithDetail("media_type", string(mt))
	}

	slog.Debug("text_extracted",
		slog.String("media_type", string(mt)),
		slog.Int("bytes", len(raw)),
		slog.Int("chars", utf8.RuneCountInString(text)),
		slog.Duration("duration", time.Since(start)))
	return text, nil
}

func extractText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", terrors.ExtractionError("text is not valid UTF-8", nil)
	}
	return strings.TrimPrefix(string(raw), "\ufeff"), nil
}
