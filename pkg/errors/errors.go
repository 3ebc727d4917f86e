// Package errors provides the typed API errors returned by crewcall services,
// mapped onto HTTP statuses by the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions re-exported for callers.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Error carries a machine-readable kind, a human-readable message and the
// HTTP status the API layer should respond with.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches an underlying cause, returning a copy.
func (e *Error) Wrap(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

func newError(kind string, status int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Status: status}
}

// Invalid reports a malformed or failed-validation request.
func Invalid(format string, args ...interface{}) *Error {
	return newError("invalid", http.StatusBadRequest, format, args...)
}

// Unauthorized reports a missing or unusable credential.
func Unauthorized(format string, args ...interface{}) *Error {
	return newError("unauthorized", http.StatusUnauthorized, format, args...)
}

// Forbidden reports an ownership or membership check failure.
func Forbidden(format string, args ...interface{}) *Error {
	return newError("forbidden", http.StatusForbidden, format, args...)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...interface{}) *Error {
	return newError("not_found", http.StatusNotFound, format, args...)
}

// Conflict reports a uniqueness or state-transition violation.
func Conflict(format string, args ...interface{}) *Error {
	return newError("conflict", http.StatusConflict, format, args...)
}

// RateLimited reports a throttled request.
func RateLimited(format string, args ...interface{}) *Error {
	return newError("rate_limited", http.StatusTooManyRequests, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: "internal", Message: "internal error", Status: http.StatusInternalServerError, Err: err}
}

// HTTPStatus extracts the response status for err, defaulting to 500.
func HTTPStatus(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// Kind extracts the machine-readable kind for err.
func Kind(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return "internal"
}
