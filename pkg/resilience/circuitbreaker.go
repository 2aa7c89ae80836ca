// Package resilience wraps the remote generation call: a circuit breaker that
// sheds load from a failing provider, jittered exponential retry, and a
// per-call deadline.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker phase. The numeric values are exported as a gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CircuitBreakerConfig holds the trip threshold and cool-down. OnStateChange
// runs under the breaker lock and must not call back into it.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// TrialCalls is how many calls may run concurrently while half-open.
	TrialCalls    int
	OnStateChange func(name string, to State)
	// IsFailure decides whether an error counts. Caller cancellation never
	// does by default.
	IsFailure func(err error) bool
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name     string
	State    State
	Failures int
	// RetryIn is the remaining cool-down while open.
	RetryIn time.Duration
}

// CircuitBreaker counts consecutive failures, opens at the threshold, and
// lets a limited number of trial calls through once the cool-down has elapsed.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.TrialCalls <= 0 {
		cfg.TrialCalls = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Call runs fn through the breaker and returns its result.
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := cb.admit(); err != nil {
		return zero, err
	}
	v, err := fn()
	cb.record(err)
	return v, err
}

// Execute is Call for functions with no result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := Call(cb, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := Snapshot{Name: cb.name, State: cb.state, Failures: cb.failures}
	if cb.state == StateOpen {
		s.RetryIn = max(cb.cfg.ResetTimeout-cb.now().Sub(cb.openedAt), 0)
	}
	return s
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.inFlight = 0, 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s, retry in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.inFlight = 0
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.cfg.TrialCalls {
			return fmt.Errorf("%w: %s, trial call in progress", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	if err == nil || !cb.cfg.IsFailure(err) {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip("trial call failed")
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.trip("threshold reached")
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
	cb.logger.Warn("circuit opened", "reason", reason, "consecutive_failures", cb.failures, "cool_down", cb.cfg.ResetTimeout)
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if to != StateOpen {
		cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String())
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
