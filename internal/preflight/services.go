package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ollamaHasModel lists the models an Ollama server has pulled and reports
// whether model is among them.
func (c *Checker) ollamaHasModel(ctx context.Context, host, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("decode model list: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == model || strings.HasPrefix(m.Name, model+":") {
			return true, nil
		}
	}
	return false, nil
}

// CheckEmbedder probes Ollama unless static embeddings are configured.
// It is only required when the provider is ollama; auto falls back.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	e := c.cfg.Embeddings
	provider := strings.ToLower(e.Provider)
	result := CheckResult{Name: "embedder", Required: provider == "ollama", Details: e.OllamaHost}

	if provider == "static" {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("static embeddings (%d dims)", e.Dimensions)
		return result
	}

	fail := StatusFail
	if provider != "ollama" {
		fail = StatusWarn
	}

	ok, err := c.ollamaHasModel(ctx, e.OllamaHost, e.Model)
	switch {
	case err != nil:
		result.Status = fail
		result.Message = fmt.Sprintf("Ollama unreachable at %s: %v", e.OllamaHost, err)
		if fail == StatusWarn {
			result.Message += " (static embeddings will be used)"
		}
	case !ok:
		result.Status = fail
		result.Message = fmt.Sprintf("model %s not pulled (run: ollama pull %s)", e.Model, e.Model)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s via Ollama", e.Model)
	}
	return result
}

// CheckReranker probes the cross-encoder's /health when one is configured.
func (c *Checker) CheckReranker(ctx context.Context) CheckResult {
	r := c.cfg.Reranker
	result := CheckResult{Name: "reranker"}

	if !strings.EqualFold(r.Provider, "http") {
		result.Status = StatusPass
		result.Message = "lexical scorer"
		return result
	}

	result.Details = r.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.Endpoint, "/")+"/health", nil)
	if err == nil {
		var resp *http.Response
		if resp, err = c.client.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
		}
	}
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable: %v (lexical scorer will be used)", r.Endpoint, err)
		return result
	}
	result.Status = StatusPass
	result.Message = r.Model
	return result
}

// CheckPDFTool looks for the PDF to text converter on PATH.
func (c *Checker) CheckPDFTool() CheckResult {
	cmd := c.cfg.Extraction.PDFCommand
	result := CheckResult{Name: "pdf_tool"}

	path, err := c.lookPath(cmd)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found; PDF uploads will fail", cmd)
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckMediaEndpoints reports which media families are enabled and
// probes the vision host.
func (c *Checker) CheckMediaEndpoints(ctx context.Context) CheckResult {
	x := c.cfg.Extraction
	result := CheckResult{Name: "media", Status: StatusPass}

	images, audio := "disabled", "disabled"
	if x.VisionHost != "" {
		images = x.VisionModel + " at " + x.VisionHost
		if ok, err := c.ollamaHasModel(ctx, x.VisionHost, x.VisionModel); err != nil || !ok {
			result.Status = StatusWarn
			images += " (unavailable)"
		}
	}
	if x.WhisperEndpoint != "" {
		audio = x.WhisperModel + " at " + x.WhisperEndpoint
	}
	result.Message = fmt.Sprintf("images: %s; audio: %s", images, audio)
	return result
}
