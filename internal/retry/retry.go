package retry

import (
	"context"
	"fmt"
	"time"

	"papercast/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
)

// Policy controls retry behavior for one fallible operation. The zero value
// is usable and applies the defaults.
type Policy struct {
	// MaxAttempts bounds total attempts, including the first (default 3).
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: delay before attempt n+1 is
	// BaseDelay * 2^(n-1), capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait (default 30s).
	MaxDelay time.Duration
	// AttemptTimeout, when positive, bounds each attempt with a derived
	// context deadline so a hung call cannot stall the run.
	AttemptTimeout time.Duration
	// OnRetry, when set, observes each scheduled retry before the wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleeper overrides how waits are performed; tests inject this.
	Sleeper func(ctx context.Context, d time.Duration) error
}

// Failure reports an operation that exhausted its attempts.
type Failure struct {
	Attempts int
	LastErr  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", f.Attempts, f.LastErr)
}

func (f *Failure) Unwrap() error { return f.LastErr }

// Do runs op under the policy. Errors classified permanent by the services
// taxonomy fail immediately without further attempts; transient errors are
// retried with exponential backoff until the attempt budget is exhausted.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.maxAttempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := runAttempt(ctx, policy, op)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if services.IsPermanent(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := policy.backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}
		if err := policy.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &Failure{Attempts: attempts, LastErr: lastErr}
}

func runAttempt[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if policy.AttemptTimeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()
		return op(attemptCtx)
	}
	return op(ctx)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// backoff returns the wait after a failed attempt (1-based).
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleeper != nil {
		return p.Sleeper(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
