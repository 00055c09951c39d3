package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// CommandRunner runs an external program with stdin and returns stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name and includes stderr in the error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// extractPDF pipes the document through pdftotext. Pages come back
// separated by form feeds and are joined with blank lines.
func (e *Extractor) extractPDF(ctx context.Context, raw []byte) (string, error) {
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		return "", terrors.ExtractionError("content is not a PDF document", nil)
	}

	out, err := e.runner.Run(ctx, e.cfg.PDFCommand, []string{"-enc", "UTF-8", "-layout", "-", "-"}, raw)
	if err != nil {
		if ctx.Err() != nil {
			return "", terrors.ExtractionError("pdf extraction timed out", ctx.Err())
		}
		if isNotFound(err) {
			return "", terrors.ExtractionError("pdf extraction tool not found", err).
				WithDetail("command", e.cfg.PDFCommand).
				WithSuggestion("Install poppler-utils or set extraction.pdf_command")
		}
		return "", terrors.ExtractionError("pdf extraction failed", err)
	}

	pages := strings.Split(string(out), "\f")
	kept := pages[:0]
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
