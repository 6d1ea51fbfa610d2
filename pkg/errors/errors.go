// Package errors defines the sentinel errors shared by the index builder,
// the snapshot codec and the query engine, together with an AppError type
// that carries an HTTP status for the serving layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBuild reports malformed or ambiguous build input (duplicate anchor,
	// empty title, unknown kind).
	ErrBuild = errors.New("build error")
	// ErrInvalidArgument reports caller-supplied query parameters that are
	// out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptIndex reports serialized index data that fails structural
	// invariants.
	ErrCorruptIndex = errors.New("corrupt index")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("index unavailable")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal error")
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

// Build returns an ErrBuild AppError.
func Build(format string, args ...any) *AppError {
	return Newf(ErrBuild, http.StatusUnprocessableEntity, format, args...)
}

// InvalidArgument returns an ErrInvalidArgument AppError.
func InvalidArgument(format string, args ...any) *AppError {
	return Newf(ErrInvalidArgument, http.StatusBadRequest, format, args...)
}

// Corrupt returns an ErrCorruptIndex AppError.
func Corrupt(format string, args ...any) *AppError {
	return Newf(ErrCorruptIndex, http.StatusInternalServerError, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrBuild):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
