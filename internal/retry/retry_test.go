package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noWait(attempts int) Policy {
	return Policy{MaxAttempts: attempts}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	err := noWait(3).Do(context.Background(), "set chunk", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", errs.ErrUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	err := noWait(3).Do(context.Background(), "set chunk", func(ctx context.Context) error {
		calls++
		return errs.ErrUnavailable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls int
	err := noWait(5).Do(context.Background(), "set chunk", func(ctx context.Context) error {
		calls++
		return errs.ErrRejected
	})
	assert.ErrorIs(t, err, errs.ErrRejected)
	assert.Equal(t, 1, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	v, err := DoValue(context.Background(), noWait(2), "upload", func(ctx context.Context) (string, error) {
		return "bafy123", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bafy123", v)
}

func TestDo_CallTimeoutIsTransient(t *testing.T) {
	p := Policy{MaxAttempts: 2, CallTimeout: 10 * time.Millisecond}

	var calls atomic.Int32
	err := p.Do(context.Background(), "get chunk", func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := noWait(5).Do(ctx, "append", func(ctx context.Context) error {
		calls++
		cancel()
		return errs.ErrUnavailable
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_WaitsBackoffOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := Policy{MaxAttempts: 3, Backoff: time.Second, MaxBackoff: time.Minute}.WithClock(clock)

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), "set chunk", func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return errs.ErrUnavailable
			}
			return nil
		})
	}()

	clock.BlockUntil(1)
	assert.Equal(t, int32(1), calls.Load())
	clock.Advance(time.Second)

	clock.BlockUntil(1)
	assert.Equal(t, int32(2), calls.Load())
	clock.Advance(2 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(30))
	assert.Equal(t, time.Duration(0), Policy{}.Delay(3))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.ErrorIs(t, Policy{MaxAttempts: 0}.Validate(), errs.ErrInvalidConfiguration)
	assert.ErrorIs(t, Policy{MaxAttempts: 1, Backoff: -1}.Validate(), errs.ErrInvalidConfiguration)
	assert.True(t, errors.Is(Policy{MaxAttempts: -2}.Validate(), errs.ErrInvalidConfiguration))
}
