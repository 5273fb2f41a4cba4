// Package errors defines the sentinel errors shared across featurehash and
// maps them onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrMalformedNumber     = errors.New("malformed number")
	ErrIncompleteParse     = errors.New("incomplete parse")
	ErrHashFailure         = errors.New("hash failure")
	ErrBatchNotFound       = errors.New("batch not found")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
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

// IsParseError reports whether err stems from a line that could not be parsed.
func IsParseError(err error) bool {
	return errors.Is(err, ErrMalformedNumber) ||
		errors.Is(err, ErrIncompleteParse) ||
		errors.Is(err, ErrHashFailure)
}

// Kind returns a short machine-readable label for err, used in API responses,
// dead-letter events and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedNumber):
		return "malformed_number"
	case errors.Is(err, ErrIncompleteParse):
		return "incomplete_parse"
	case errors.Is(err, ErrHashFailure):
		return "hash_failure"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}

// FromKind is the inverse of Kind: it returns the sentinel for a kind label,
// or ErrInternal for anything unrecognised.
func FromKind(kind string) error {
	switch kind {
	case "malformed_number":
		return ErrMalformedNumber
	case "incomplete_parse":
		return ErrIncompleteParse
	case "hash_failure":
		return ErrHashFailure
	case "invalid_input":
		return ErrInvalidInput
	case "timeout":
		return ErrTimeout
	default:
		return ErrInternal
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case IsParseError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
