package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// RetryConfig configures Retry's backoff behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig returns production-shaped defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff between
// attempts, checking ctx before each attempt and during each wait; a running
// fn is not interrupted. The pattern executor's Retry recovery strategy does
// not use this loop; it shares only the BackoffDuration formula.
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		wait := delay
		if cfg.JitterEnabled {
			wait += time.Duration(float64(delay) * 0.1 * (rand.Float64()*2 - 1))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return rherr.Wrap("resilience.Retry", "resilience", rherr.ErrExecutionError,
		errAfterAttempts(cfg.MaxAttempts, lastErr))
}

// errAfterAttempts wraps lastErr with the attempt count for the ledger
// rherr.Wrap preserves via Unwrap.
func errAfterAttempts(attempts int, lastErr error) error {
	return &maxAttemptsError{attempts: attempts, err: lastErr}
}

type maxAttemptsError struct {
	attempts int
	err      error
}

func (e *maxAttemptsError) Error() string {
	if e.err == nil {
		return "max retry attempts exceeded"
	}
	return e.err.Error()
}

func (e *maxAttemptsError) Unwrap() error { return e.err }

// RetryWithCircuitBreaker composes Retry with a CircuitBreaker: each attempt
// must clear cb.CanExecute before running fn, and its outcome is recorded
// against the breaker regardless of whether Retry ultimately succeeds.
func RetryWithCircuitBreaker(ctx context.Context, cfg *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, cfg, func() error {
		return cb.Execute(ctx, fn)
	})
}

// backoffDuration computes the exponential-backoff delay (backoff_ms on
// attempt 1, backoff_ms·2ⁿ⁻¹ when exponential) independent of this
// package's own Retry loop, so the pattern executor's recovery strategy can
// reuse the same formula.
func backoffDuration(backoff time.Duration, attempt int, exponential bool) time.Duration {
	if !exponential || attempt <= 1 {
		return backoff
	}
	return time.Duration(float64(backoff) * math.Pow(2, float64(attempt-1)))
}

// BackoffDuration is the exported form of backoffDuration for callers
// outside this package (the pattern executor's Retry recovery strategy).
func BackoffDuration(backoff time.Duration, attempt int, exponential bool) time.Duration {
	return backoffDuration(backoff, attempt, exponential)
}
