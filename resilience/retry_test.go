package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsWrappedErrorAfterExhaustingAttempts(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	boom := errors.New("boom")
	calls := 0

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	err := Retry(ctx, cfg, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDuration_ExponentialDoublesPerAttempt(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, BackoffDuration(base, 1, true))
	assert.Equal(t, 2*base, BackoffDuration(base, 2, true))
	assert.Equal(t, 4*base, BackoffDuration(base, 3, true))
}

func TestBackoffDuration_FlatWhenNotExponential(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, BackoffDuration(base, 1, false))
	assert.Equal(t, base, BackoffDuration(base, 5, false))
}

func TestRetryWithCircuitBreaker_StopsRetryingOnceCircuitOpens(t *testing.T) {
	cb := New(&Config{
		Name: "retry-test", ErrorThreshold: 0.1, VolumeThreshold: 1,
		SleepWindow: time.Hour, WindowSize: time.Second, BucketCount: 10,
	})
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	calls := 0
	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
	assert.Less(t, calls, 5)
}
