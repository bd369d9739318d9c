// Package retry wraps remote calls with a bounded, uniformly applied retry
// policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/chunksync/internal/errs"
)

const (
	DefaultMaxAttempts = 4
	DefaultBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
	DefaultCallTimeout = 2 * time.Minute
)

// Policy retries an operation up to MaxAttempts times. The wait before
// attempt n+1 is Backoff * 2^(n-1), capped at MaxBackoff. Each attempt gets
// its own CallTimeout deadline; an attempt that runs into it counts as a
// transient failure.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration

	clock clockwork.Clock
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		CallTimeout: DefaultCallTimeout,
	}
}

// WithClock returns a copy of p that sleeps on clock.
func (p Policy) WithClock(clock clockwork.Clock) Policy {
	p.clock = clock
	return p
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be >= 1, got %d", errs.ErrInvalidConfiguration, p.MaxAttempts)
	}
	if p.Backoff < 0 || p.MaxBackoff < 0 || p.CallTimeout < 0 {
		return fmt.Errorf("%w: retry durations must not be negative", errs.ErrInvalidConfiguration)
	}
	return nil
}

// Delay is the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff <= 0 || attempt < 1 {
		return 0
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. op names the call in logs.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	clock := p.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := callWithTimeout(ctx, p.CallTimeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err

		// the caller went away; never retry past it
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !errs.IsRetryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		slog.Warn("retrying remote call", "op", op, "attempt", attempt, "delay", delay, "error", err)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clock.After(delay):
			}
		}
	}

	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, lastErr)
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: call timed out after %s: %w", errs.ErrUnavailable, timeout, err)
	}
	return v, err
}
