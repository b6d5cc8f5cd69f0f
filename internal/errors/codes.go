// Package errors provides structured error handling for vidsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Registry errors (connectivity, auth, malformed responses)
//   - 3XX: Manifest errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors (embedding, queue, store)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryRegistry indicates errors talking to the video registry.
	CategoryRegistry Category = "REGISTRY"
	// CategoryManifest indicates manifest fetch or validation errors.
	CategoryManifest Category = "MANIFEST"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
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
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Registry errors (200-299)
	ErrCodeRegistryUnavailable  = "ERR_201_REGISTRY_UNAVAILABLE"
	ErrCodeRegistryUnauthorized = "ERR_202_REGISTRY_UNAUTHORIZED"
	ErrCodeRegistryMalformed    = "ERR_203_REGISTRY_MALFORMED"
	ErrCodeVideoNotFound        = "ERR_204_VIDEO_NOT_FOUND"

	// Manifest errors (300-399)
	ErrCodeManifestFetch   = "ERR_301_MANIFEST_FETCH"
	ErrCodeManifestInvalid = "ERR_302_MANIFEST_INVALID"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidPage  = "ERR_403_INVALID_PAGE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeQueueFull       = "ERR_503_QUEUE_FULL"
	ErrCodeStoreWrite      = "ERR_504_STORE_WRITE"
	ErrCodeIndexingFailed  = "ERR_505_INDEXING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryRegistry
	case '3':
		return CategoryManifest
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid:
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
	case ErrCodeRegistryUnavailable, ErrCodeManifestFetch, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
