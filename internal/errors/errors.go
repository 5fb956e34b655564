package errors

import (
	stderrors "errors"
	"fmt"
)

// ServiceError is the structured error type for memclawz.
// It provides rich context for error handling, logging, and API responses.
type ServiceError struct {
	// Code is the unique error code (e.g., "ERR_601_UNAUTHORIZED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ServiceError.
func (e *ServiceError) Is(target error) bool {
	if t, ok := target.(*ServiceError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ServiceError) WithDetail(key, value string) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ServiceError from an existing error.
// The error's message becomes the ServiceError message.
func Wrap(code string, err error) *ServiceError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ServiceError {
	return New(ErrCodeInvalidInput, message, cause)
}

// Unauthorized creates a missing/invalid credential error.
func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, nil)
}

// Forbidden creates a cross-tenant write rejection error.
func Forbidden(message string) *ServiceError {
	return New(ErrCodeForbidden, message, nil)
}

// EmbeddingUnavailable creates an unreachable-embedder error.
// These are retryable on the next sync cycle.
func EmbeddingUnavailable(message string, cause error) *ServiceError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ServiceError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first ServiceError in err's chain.
// Thin wrapper over the standard library so callers don't need two imports.
func As(err error, target **ServiceError) bool {
	return stderrors.As(err, target)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a ServiceError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first ServiceError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
