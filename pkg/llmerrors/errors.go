// Package llmerrors provides structured error classification for completion-provider
// API interactions. Provider adapters wrap raw SDK failures into *Error so the
// resilience layer can make retry decisions without provider-specific knowledge.
package llmerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different categories of provider errors.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting or overload errors (429, 503, quota exhaustion).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx other than 503, EOF, connection reset).
	ErrorTypeTransient
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified provider error.
type Error struct {
	Err        error         // Wrapped underlying error
	Message    string        // Human-readable error message
	Type       ErrorType     // Classified error type
	StatusCode int           // HTTP status code if applicable
	RetryAfter time.Duration // Server-hinted wait time, zero when none was given
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("provider error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified provider error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified provider error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified provider error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// NewRateLimitError creates a rate-limit error carrying a server-hinted wait time.
func NewRateLimitError(statusCode int, retryAfter time.Duration, message string) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
		Message:    message,
	}
}
