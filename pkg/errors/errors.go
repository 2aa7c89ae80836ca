// Package errors holds the sentinel errors of the RAG pipeline and the
// AppError type that pairs a sentinel with a client-facing message and an
// HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrIndexCorrupt      = errors.New("index artifact corrupt")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidInput      = errors.New("invalid input")
	ErrGeneration        = errors.New("generation failed")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError is returned at the HTTP edge. Message is safe to show to the
// client; the wrapped Kind stays matchable with errors.Is.
type AppError struct {
	Kind    error
	Status  int
	Message string
}

func (e *AppError) Error() string { return e.Kind.Error() + ": " + e.Message }

func (e *AppError) Unwrap() error { return e.Kind }

// Invalid builds an ErrInvalidInput with the given status, normally 400 or 413.
func Invalid(status int, format string, args ...any) *AppError {
	return &AppError{Kind: ErrInvalidInput, Status: status, Message: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err belongs to the startup-fatal class:
// missing or mismatched index artifacts and embedder/index dimension drift.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrIndexCorrupt) ||
		errors.Is(err, ErrDimensionMismatch)
}

// HTTPStatusCode maps err to a response status. An AppError's own status
// takes precedence over its kind.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrGeneration):
		return http.StatusBadGateway
	case IsConfiguration(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text to put in an error response body.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
