package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Policy describes how a failed call is repeated. The zero value makes a
// single attempt.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64
	// Retryable filters errors worth another attempt. Nil retries everything.
	Retryable func(err error) bool
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter <= 0 || p.Jitter > 1 {
		p.Jitter = 0.1
	}
	return p
}

// Backoff returns the wait before attempt n+1, given that attempt n failed.
func (p Policy) Backoff(n int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(n-1))
	d *= 1 + p.Jitter*(2*rand.Float64()-1)
	return min(time.Duration(d), p.MaxDelay)
}

// Do calls fn until it succeeds or the policy gives up. The attempt number
// passed to fn starts at 1. Cancelling ctx ends the loop during a backoff
// wait; the last error from fn is always wrapped into the result.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", op)

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return v, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt >= p.Attempts {
			if p.Attempts == 1 {
				return zero, err
			}
			return zero, fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}

		wait := p.Backoff(attempt)
		logger.Warn("attempt failed", "attempt", attempt, "of", p.Attempts, "error", err, "backoff", wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: cancelled after attempt %d: %w", op, attempt, err)
		}
	}
}
