package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error status wins", Invalid(http.StatusRequestEntityTooLarge, "too big"), http.StatusRequestEntityTooLarge},
		{"invalid input", fmt.Errorf("k: %w", ErrInvalidInput), http.StatusBadRequest},
		{"timeout", fmt.Errorf("generate: %w", ErrTimeout), http.StatusGatewayTimeout},
		{"generation", fmt.Errorf("chat: %w", ErrGeneration), http.StatusBadGateway},
		{"dimension", fmt.Errorf("load: %w", ErrDimensionMismatch), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsConfiguration(t *testing.T) {
	if !IsConfiguration(fmt.Errorf("open: %w", ErrIndexCorrupt)) {
		t.Error("corrupt index should be a configuration error")
	}
	if IsConfiguration(ErrGeneration) {
		t.Error("generation failure is not a configuration error")
	}
}

func TestInvalid(t *testing.T) {
	err := fmt.Errorf("decode: %w", Invalid(http.StatusBadRequest, "k must be between 1 and %d", 10))
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("AppError should unwrap to ErrInvalidInput")
	}
	if got := PublicMessage(err); got != "k must be between 1 and 10" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(ErrGeneration); got != "generation failed" {
		t.Errorf("PublicMessage(sentinel) = %q", got)
	}
}
