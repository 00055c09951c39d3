package errors

import (
	stderrors "errors"
	"fmt"
)

// TailoredError is the structured error type for tailored.
// It provides rich context for error handling, logging, and user presentation.
type TailoredError struct {
	// Code is the unique error code (e.g., "ERR_401_SHAPE_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *TailoredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *TailoredError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, New(code, "", nil)) works.
func (e *TailoredError) Is(target error) bool {
	if t, ok := target.(*TailoredError); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the taxonomy kind of this error.
func (e *TailoredError) Kind() Kind {
	return kindFromCode(e.Code)
}

// WithDetail adds a key-value detail to the error.
func (e *TailoredError) WithDetail(key, value string) *TailoredError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *TailoredError) WithSuggestion(suggestion string) *TailoredError {
	e.Suggestion = suggestion
	return e
}

// New creates a new TailoredError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *TailoredError {
	return &TailoredError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a TailoredError from an existing error.
// The error's message becomes the TailoredError message.
func Wrap(code string, err error) *TailoredError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ExtractionError reports raw bytes that could not be turned into text.
func ExtractionError(message string, cause error) *TailoredError {
	return New(ErrCodeExtractionFailed, message, cause)
}

// ShapeMismatch reports an embedding whose dimension differs from the index.
func ShapeMismatch(expected, got int) *TailoredError {
	return New(ErrCodeShapeMismatch,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

// IndexUnavailable reports an unreachable durable store or lexical backend.
func IndexUnavailable(message string, cause error) *TailoredError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// NotFound reports an unknown source id.
func NotFound(sourceID string) *TailoredError {
	return New(ErrCodeSourceNotFound, "source not found: "+sourceID, nil).
		WithDetail("source_id", sourceID)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TailoredError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TailoredError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TailoredError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first TailoredError in err's chain.
func As(err error) (*TailoredError, bool) {
	var te *TailoredError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind for any error in the chain.
// Errors that carry no TailoredError are reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if te, ok := As(err); ok {
		return te.Kind()
	}
	return KindInternal
}

// IsKind reports whether err belongs to the given taxonomy kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if te, ok := As(err); ok {
		return te.Retryable
	}
	return false
}

// GetCode extracts the error code, or "" when err carries none.
func GetCode(err error) string {
	if te, ok := As(err); ok {
		return te.Code
	}
	return ""
}
