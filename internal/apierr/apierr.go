// Package apierr defines structured error types for the admin API.
package apierr

import (
	"fmt"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing.
	ErrMissingField ErrorCode = "MISSING_FIELD"

	// ErrDocNotFound is returned when a document or version is not found.
	ErrDocNotFound ErrorCode = "DOC_NOT_FOUND"
	// ErrDuplicateVersion is returned when a (slug, version) pair already exists.
	ErrDuplicateVersion ErrorCode = "DUPLICATE_VERSION"
	// ErrFileConflict is returned when the target filename is already taken.
	ErrFileConflict ErrorCode = "FILE_CONFLICT"

	// ErrUnauthorized is returned when authentication is missing or invalid.
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrInternal is returned when an unexpected server error occurs.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates an APIError with the given status code and message.
func New(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{statusCode: statusCode, code: code, message: message}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int { return e.statusCode }

// Code returns the error code.
func (e *APIError) Code() ErrorCode { return e.code }

// Details returns additional error details.
func (e *APIError) Details() map[string]any { return e.details }

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error { return e.wrappedErr }

// NotFound creates a 404 error for a document addressed by slug (and
// optionally version).
func NotFound(slug, version string) *APIError {
	ref := slug
	if version != "" {
		ref += "@" + version
	}
	return New(http.StatusNotFound, ErrDocNotFound, fmt.Sprintf("document %s not found", ref)).
		WithDetail("slug", slug)
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return New(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return New(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("missing required field: %s", fieldName))
}

// Conflict creates a 409 Conflict error.
func Conflict(code ErrorCode, message string) *APIError {
	return New(http.StatusConflict, code, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	return New(http.StatusUnauthorized, ErrUnauthorized, message)
}

// Internal creates a 500 error wrapping an underlying error.
func Internal(message string, err error) *APIError {
	return New(http.StatusInternalServerError, ErrInternal, message).Wrap(err)
}
