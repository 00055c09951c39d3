// Package errors provides the structured error type used across tailored.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: Network / collaborator errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//
// Retrieval failures are additionally classified into a small taxonomy
// (see Kind) so callers can tell a failed operation from a legitimately
// empty result.
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// IO errors (200-299)
	ErrCodeExtractionFailed = "ERR_201_EXTRACTION_FAILED"
	ErrCodeIndexUnavailable = "ERR_202_INDEX_UNAVAILABLE"
	ErrCodeFileNotFound     = "ERR_203_FILE_NOT_FOUND"
	ErrCodeCorruptStore     = "ERR_204_CORRUPT_STORE"
	ErrCodeStoreLocked      = "ERR_205_STORE_LOCKED"

	// Network errors (300-399)
	ErrCodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	ErrCodeScorerUnavailable   = "ERR_302_SCORER_UNAVAILABLE"
	ErrCodeNetworkTimeout      = "ERR_303_NETWORK_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeShapeMismatch    = "ERR_401_SHAPE_MISMATCH"
	ErrCodeSourceNotFound   = "ERR_402_SOURCE_NOT_FOUND"
	ErrCodeUnsupportedMedia = "ERR_403_UNSUPPORTED_MEDIA"
	ErrCodeInvalidInput     = "ERR_404_INVALID_INPUT"
	ErrCodeQueryEmpty       = "ERR_405_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// Kind is the retrieval failure taxonomy.
type Kind string

const (
	KindNone             Kind = ""
	KindExtraction       Kind = "ExtractionError"
	KindShapeMismatch    Kind = "ShapeMismatch"
	KindIndexUnavailable Kind = "IndexUnavailable"
	KindNotFound         Kind = "NotFound"
	KindInvalidInput     Kind = "InvalidInput"
	KindInternal         Kind = "Internal"
)

// kindFromCode maps an error code onto the taxonomy.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeExtractionFailed, ErrCodeUnsupportedMedia:
		return KindExtraction
	case ErrCodeShapeMismatch:
		return KindShapeMismatch
	case ErrCodeIndexUnavailable, ErrCodeCorruptStore, ErrCodeStoreLocked,
		ErrCodeEmbedderUnavailable, ErrCodeScorerUnavailable, ErrCodeNetworkTimeout:
		return KindIndexUnavailable
	case ErrCodeSourceNotFound, ErrCodeFileNotFound:
		return KindNotFound
	case ErrCodeInvalidInput, ErrCodeQueryEmpty, ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	// "ERR_101_..." -> '1'
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexUnavailable, ErrCodeEmbedderUnavailable,
		ErrCodeScorerUnavailable, ErrCodeNetworkTimeout:
		return true
	default:
		return false
	}
}
