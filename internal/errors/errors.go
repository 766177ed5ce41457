package errors

import (
	"errors"
	"fmt"
)

// SynapError is the structured error type for synapstor.
// It provides rich context for error handling, logging, and run reports.
type SynapError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_UNREADABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, File, Transport, ...).
	Category Category

	// Severity is the error severity level.
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
func (e *SynapError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SynapError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SynapError.
func (e *SynapError) Is(target error) bool {
	if t, ok := target.(*SynapError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SynapError) WithDetail(key, value string) *SynapError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *SynapError) WithSuggestion(suggestion string) *SynapError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SynapError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SynapError {
	return &SynapError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SynapError from an existing error.
// The error's message becomes the SynapError message.
func Wrap(code string, err error) *SynapError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error. Fatal: detected before any
// write, aborts the run.
func ConfigError(message string, cause error) *SynapError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// FileError creates a per-file error. Recorded in the run report; never
// aborts the run.
func FileError(message string, cause error) *SynapError {
	return New(ErrCodeFileUnreadable, message, cause)
}

// TransportError creates a network error against an external service.
// Connection-level transport errors are retryable.
func TransportError(message string, cause error) *SynapError {
	return New(ErrCodeTransportUnavailable, message, cause)
}

// EmbeddingError creates an embedding provider failure for a single item.
func EmbeddingError(message string, cause error) *SynapError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SynapError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a SynapError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var se *SynapError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current operation.
func IsFatal(err error) bool {
	var se *SynapError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an error chain.
// Returns empty string if no SynapError is found.
func GetCode(err error) string {
	var se *SynapError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from an error chain.
// Returns empty string if no SynapError is found.
func GetCategory(err error) Category {
	var se *SynapError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
