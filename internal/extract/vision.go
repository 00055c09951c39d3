package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// captionImage asks an Ollama vision model to describe the image.
func (e *Extractor) captionImage(ctx context.Context, raw []byte) (string, error) {
	if e.cfg.VisionHost == "" {
		return "", terrors.New(terrors.ErrCodeUnsupportedMedia, "image captioning is not configured", nil).
			WithSuggestion("Set extraction.vision_host to an Ollama server with a vision model")
	}

	body, err := json.Marshal(generateRequest{
		Model:  e.cfg.VisionModel,
		Prompt: e.cfg.VisionPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(raw)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.VisionHost+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", terrors.ExtractionError("image captioning request failed", err).
			WithDetail("host", e.cfg.VisionHost)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", terrors.ExtractionError(
			fmt.Sprintf("image captioning failed (status %d): %s", resp.StatusCode, msg), nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", terrors.ExtractionError("invalid captioning response", err)
	}
	return out.Response, nil
}
