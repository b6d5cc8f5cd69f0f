package errors

import (
	stderrors "errors"
	"fmt"
)

// As is a convenience re-export of the standard library's errors.As, so
// callers of this package do not need a second errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is a convenience re-export of the standard library's errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IndexError is the structured error type for vidsearch.
// It carries enough context for logging, retry decisions, and status
// endpoints without string matching.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_201_REGISTRY_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Registry, Manifest, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// RegistryError creates a registry connectivity error. Retryable.
func RegistryError(message string, cause error) *IndexError {
	return New(ErrCodeRegistryUnavailable, message, cause)
}

// ManifestError creates a manifest validation error.
func ManifestError(message string, cause error) *IndexError {
	return New(ErrCodeManifestInvalid, message, cause)
}

// EmbeddingError creates an embedding-collaborator error. Retryable.
func EmbeddingError(message string, cause error) *IndexError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error (or any error in its chain) is retryable.
func IsRetryable(err error) bool {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from an IndexError.
func GetCategory(err error) Category {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Category
	}
	return ""
}
