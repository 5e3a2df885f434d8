// Package resilience provides the retry and circuit-breaker primitives that
// guard the language-model endpoint. A batch call that fails transiently is
// retried with exponential backoff; an endpoint that fails persistently
// trips the breaker so remaining batches degrade immediately instead of
// burning the retry budget one by one.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"time"
)

// RetryConfig tunes [Retry].
type RetryConfig struct {
	// Attempts is the total number of tries (first call included).
	// Default: 3.
	Attempts int

	// Backoff is the delay before the second attempt. It doubles after each
	// failure up to MaxBackoff. Default: 1s.
	Backoff time.Duration

	// MaxBackoff caps the backoff growth. Default: 30s.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Retry runs fn until it succeeds, the attempt budget is exhausted, or ctx
// is cancelled. The error of the last attempt is returned; cancellation
// during a backoff wait returns ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	backoff := cfg.Backoff
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		// Cancellation is not retryable.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
