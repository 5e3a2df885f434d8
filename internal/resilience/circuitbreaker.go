package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/subforge/subforge/internal/observe"
)

// ErrBreakerOpen is returned by [CircuitBreaker.Execute] while the endpoint
// is suspended after repeated failures and the cool-down has not elapsed.
var ErrBreakerOpen = errors.New("resilience: endpoint suspended after repeated failures")

// BreakerConfig tunes a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels the guarded endpoint in log messages.
	Name string

	// MaxFailures is the number of consecutive failures that suspends the
	// endpoint. Default: 5.
	MaxFailures int

	// CoolDown is how long calls are rejected after a suspension before a
	// single probe call is let through. Default: 30s.
	CoolDown time.Duration
}

// CircuitBreaker guards the model endpoint shared by all batch workers.
// After MaxFailures consecutive failures every call is rejected with
// [ErrBreakerOpen] until the cool-down elapses, then exactly one probe call
// goes through: success resumes normal operation, failure starts a fresh
// cool-down. Calls that fail because the caller's context was cancelled do
// not count against the endpoint.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	now         func() time.Time

	mu            sync.Mutex
	failures      int
	suspended     bool
	suspendedAt   time.Time
	probeInFlight bool
}

// NewCircuitBreaker creates a [CircuitBreaker], filling in defaults for zero
// config fields.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		now:         time.Now,
	}
}

// Execute runs fn under the breaker. While suspended it returns
// [ErrBreakerOpen] without calling fn, except for the single probe call
// admitted after each cool-down.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := cb.admit(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx)

	// A cancelled job says nothing about endpoint health: release the probe
	// slot without a verdict and keep the counters as they were.
	if err != nil && ctx.Err() != nil {
		cb.mu.Lock()
		cb.probeInFlight = false
		cb.mu.Unlock()
		return err
	}

	cb.settle(ctx, probe, err)
	return err
}

// admit decides whether a call may proceed, reserving the probe slot when
// the cool-down has elapsed.
func (cb *CircuitBreaker) admit(ctx context.Context) (probe bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.suspended {
		return false, nil
	}
	if cb.now().Sub(cb.suspendedAt) < cb.coolDown || cb.probeInFlight {
		return false, ErrBreakerOpen
	}
	cb.probeInFlight = true
	return true, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(ctx context.Context, probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if probe {
			observe.Logger(ctx).Info("endpoint resumed after successful probe", "endpoint", cb.name)
		}
		cb.failures = 0
		cb.suspended = false
		cb.probeInFlight = false
		return
	}

	if probe {
		cb.suspendedAt = cb.now()
		cb.probeInFlight = false
		observe.Logger(ctx).Warn("probe failed, endpoint stays suspended", "endpoint", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.suspended = true
		cb.suspendedAt = cb.now()
		observe.Logger(ctx).Warn("endpoint suspended",
			"endpoint", cb.name,
			"consecutive_failures", cb.failures)
	}
}
