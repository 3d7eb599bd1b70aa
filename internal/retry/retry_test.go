package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"papercast/internal/services"
)

func instantSleeper(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Sleeper: instantSleeper(&delays)}

	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "synthesize", "", "503", nil)
	})

	if calls != 3 {
		t.Fatalf("calls = %d, want exactly 3", calls)
	}
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}
	if failure.Attempts != 3 {
		t.Fatalf("attempts = %d", failure.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] = %v, want %v (baseDelay * 2^(attempt-1))", i, delays[i], want[i])
		}
	}
}

func TestPermanentFailureNotRetried(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleeper: func(context.Context, time.Duration) error { return nil }}

	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "collect", "", "only 2 papers", nil)
	})

	if calls != 1 {
		t.Fatalf("permanent failure retried: calls = %d", calls)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var failure *Failure
	if errors.As(err, &failure) {
		t.Fatal("permanent error should not be wrapped in Failure")
	}
}

func TestSucceedsAfterRetries(t *testing.T) {
	var retries []int
	calls := 0
	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleeper:     func(context.Context, time.Duration) error { return nil },
		OnRetry:     func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) },
	}

	value, err := DoValue(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", services.Wrap(services.ErrTimeout, "summarize", "", "deadline", nil)
		}
		return "summary", nil
	})
	if err != nil {
		t.Fatalf("DoValue: %v", err)
	}
	if value != "summary" {
		t.Fatalf("value = %q", value)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Fatalf("retry observations = %v", retries)
	}
}

func TestContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Sleeper: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	err := Do(ctx, policy, func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "upload", "", "flaky", nil)
	})
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAttemptTimeoutApplied(t *testing.T) {
	policy := Policy{MaxAttempts: 1, AttemptTimeout: 10 * time.Millisecond}
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("attempt context should carry a deadline")
		}
		if time.Until(deadline) > 10*time.Millisecond {
			t.Fatalf("deadline too far: %v", time.Until(deadline))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	policy := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	if got := policy.backoff(1); got != time.Second {
		t.Fatalf("backoff(1) = %v", got)
	}
	if got := policy.backoff(2); got != 2*time.Second {
		t.Fatalf("backoff(2) = %v", got)
	}
	if got := policy.backoff(4); got != 3*time.Second {
		t.Fatalf("backoff(4) = %v, want capped at 3s", got)
	}
}
