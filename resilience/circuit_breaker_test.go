package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/rhlog"
)

func testBreaker(t *testing.T, mutate func(*Config)) *CircuitBreaker {
	t.Helper()
	cfg := &Config{
		Name:             "test",
		ErrorThreshold:   0.5,
		VolumeThreshold:  4,
		SleepWindow:      20 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
		BucketCount:      10,
		Logger:           rhlog.NoOpLogger{},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := testBreaker(t, nil)
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_TripsOpenAfterErrorRateExceedsThreshold(t *testing.T) {
	cb := testBreaker(t, nil)
	ctx := context.Background()
	failing := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_StaysClosedBelowVolumeThreshold(t *testing.T) {
	cb := testBreaker(t, nil)
	ctx := context.Background()
	failing := errors.New("boom")

	_ = cb.Execute(ctx, func() error { return failing })
	_ = cb.Execute(ctx, func() error { return failing })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	cb := testBreaker(t, nil)
	ctx := context.Background()
	failing := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, func() error { return nil })
	require.Error(t, err)
}

func TestCircuitBreaker_HalfOpenClosesOnSuccessfulProbes(t *testing.T) {
	cb := testBreaker(t, nil)
	ctx := context.Background()
	failing := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond) // clear SleepWindow

	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func() error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenReopensOnFailedProbes(t *testing.T) {
	cb := testBreaker(t, nil)
	ctx := context.Background()
	failing := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ForceOpenAndReset(t *testing.T) {
	cb := testBreaker(t, nil)
	cb.ForceOpen()
	assert.False(t, cb.CanExecute())
	cb.ForceReset()
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_StateChangeListenerFires(t *testing.T) {
	cb := testBreaker(t, nil)
	var transitions []string
	cb.OnStateChange(func(name string, from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	ctx := context.Background()
	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return failing })
	}

	require.NotEmpty(t, transitions)
	assert.Equal(t, "closed->open", transitions[0])
}

func TestDefaultErrorClassifier_IgnoresCancellation(t *testing.T) {
	assert.False(t, DefaultErrorClassifier(context.Canceled))
	assert.False(t, DefaultErrorClassifier(nil))
	assert.True(t, DefaultErrorClassifier(errors.New("boom")))
}
