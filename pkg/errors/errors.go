// Package errors defines the service-wide error taxonomy and its mapping onto
// HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidQuery    = errors.New("invalid query")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUninitialized   = errors.New("search index not initialized")
	ErrReopenFailed    = errors.New("index reopen failed")
	ErrAuxiliaryLoad   = errors.New("auxiliary data load failed")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
	ErrCacheBackend    = errors.New("cache backend unavailable")
	ErrFeedNotFound    = errors.New("curated feed not found")
	ErrInvalidDocument = errors.New("invalid package document")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// BadRequest wraps a client-caused failure so it surfaces as a 400.
func BadRequest(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, http.StatusBadRequest, format, args...)
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	code := HTTPStatusCode(err)
	return code >= 400 && code < 500
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUninitialized), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
