package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: err = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("Retry: calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 4, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Retry: err = %v, want boom", err)
	}
	if calls != 4 {
		t.Errorf("Retry: calls = %d, want 4", calls)
	}
}

func TestRetry_CancellationStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{Attempts: 10, Backoff: time.Minute}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry: err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("Retry: calls = %d, want 1 (no retry after cancel)", calls)
	}
}
