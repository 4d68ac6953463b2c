package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Routing error codes
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionClosed   ErrorCode = "SESSION_CLOSED"
	ErrScorerFailed    ErrorCode = "SCORER_FAILED"
	ErrNoActiveAgent   ErrorCode = "NO_ACTIVE_AGENT"
)

// Infrastructure error codes
const (
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status to report for this error.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks whether the caller may retry the failed operation.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the ErrorCode from an error, or ErrInternalError
// if the error is not a *types.Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}

// IsRetryable reports whether the error is a retryable *types.Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
