package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// transcribeAudio posts the clip to an OpenAI-style transcription endpoint.
func (e *Extractor) transcribeAudio(ctx context.Context, raw []byte, mt MediaType) (string, error) {
	if e.cfg.WhisperEndpoint == "" {
		return "", terrors.New(terrors.ErrCodeUnsupportedMedia, "audio transcription is not configured", nil).
			WithSuggestion("Set extraction.whisper_endpoint to a whisper-compatible server")
	}

	filename := "audio.mp3"
	if mt == MediaWAV {
		filename = "audio.wav"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.WriteField("model", e.cfg.WhisperModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to write format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WhisperEndpoint+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", terrors.ExtractionError("transcription request failed", err).
			WithDetail("endpoint", e.cfg.WhisperEndpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", terrors.ExtractionError(
			fmt.Sprintf("transcription failed (status %d): %s", resp.StatusCode, msg), nil)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", terrors.ExtractionError("invalid transcription response", err)
	}
	return out.Text, nil
}
