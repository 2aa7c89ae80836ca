package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
)

// WithTimeout runs fn under a deadline of d and waits for it to return, so fn
// must honour ctx. When the deadline (or the caller's own deadline) is what
// ended the call, the error also wraps apperrors.ErrTimeout. A non-positive d
// runs fn under ctx unchanged.
func WithTimeout[T any](ctx context.Context, d time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(callCtx)
	if err == nil || errors.Is(err, apperrors.ErrTimeout) {
		return v, err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		if ctx.Err() == nil {
			return v, fmt.Errorf("%s: %w after %v: %w", op, apperrors.ErrTimeout, d, err)
		}
		return v, fmt.Errorf("%s: %w: caller deadline: %w", op, apperrors.ErrTimeout, err)
	}
	return v, err
}
