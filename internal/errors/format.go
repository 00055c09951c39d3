package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	te, ok := As(err)
	if !ok {
		te = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", te.Message)
	if te.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", te.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", te.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	te, ok := As(err)
	if !ok {
		te = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       te.Code,
		Kind:       string(te.Kind()),
		Message:    te.Message,
		Category:   string(te.Category),
		Severity:   string(te.Severity),
		Details:    te.Details,
		Suggestion: te.Suggestion,
		Retryable:  te.Retryable,
	}
	if te.Cause != nil {
		je.Cause = te.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs flattens an error into key/value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	te, ok := As(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{
		"error", te.Error(),
		"error_code", te.Code,
		"error_kind", string(te.Kind()),
		"retryable", te.Retryable,
	}
	for k, v := range te.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
