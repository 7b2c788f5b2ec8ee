package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatNotFound   ErrorCategory = "not_found"  // Unknown scenario, tier, run
	ErrCatGeneration ErrorCategory = "generation" // Generation backend failure
	ErrCatTransport  ErrorCategory = "transport"  // Display client went away
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatStorage    ErrorCategory = "storage"    // Session store failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrGeneration creates a generation backend error.
func ErrGeneration(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatGeneration,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTransport creates a transport error. The display client is gone, so
// retrying the same stream is pointless.
func ErrTransport(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTransport,
		Code:      CodeStreamClosed,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrStorage creates a session storage error.
func ErrStorage(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatStorage,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeScenarioNotFound = "SCENARIO_NOT_FOUND"
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeInvalidControl   = "INVALID_CONTROL_MESSAGE"
	CodeStreamClosed     = "STREAM_CLOSED"

	// Generation error codes
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeBackendStatus      = "BACKEND_BAD_STATUS"
	CodeStreamIncomplete   = "STREAM_INCOMPLETE"
	CodeEmptyResponse      = "EMPTY_RESPONSE"

	// Storage error codes
	CodeMigrationFailed = "MIGRATION_FAILED"
)
