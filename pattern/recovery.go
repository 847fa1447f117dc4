package pattern

import (
	"context"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/resilience"
)

// RecoveryStrategy is consulted when a pattern fails during PhaseExecuting.
// Exactly one of the RetryStrategy/RollbackStrategy/AbortStrategy fields is
// meaningful per concrete value; Kind says which.
type RecoveryKind string

const (
	RecoveryRetry    RecoveryKind = "retry"
	RecoveryRollback RecoveryKind = "rollback"
	RecoveryAbort    RecoveryKind = "abort"
)

// RetryStrategy re-runs Execute up to MaxAttempts times. Backoff is
// BackoffMs on attempt 1, BackoffMs·2ⁿ⁻¹ when Exponential.
type RetryStrategy struct {
	MaxAttempts int
	BackoffMs   int
	Exponential bool
}

// RollbackStrategy invokes Pattern.Rollback; CheckpointID identifies what
// state to restore to and must be non-empty.
type RollbackStrategy struct {
	CheckpointID        string
	RestoreResources    bool
	RestoreAgentStates  bool
}

// AbortStrategy performs best-effort cleanup then moves the run to
// terminal Failed.
type AbortStrategy struct {
	CleanupResources bool
	NotifyAgents     bool
}

// RecoveryStrategy is a tagged union over the three recovery strategies.
// Only the field matching Kind is read.
type RecoveryStrategy struct {
	Kind     RecoveryKind
	Retry    RetryStrategy
	Rollback RollbackStrategy
	Abort    AbortStrategy
}

// recoveryOutcome is the result of attempting one recovery round. result is
// only meaningful when the strategy re-ran Execute (Retry); the caller uses
// it directly rather than invoking Execute again.
type recoveryOutcome struct {
	recovered bool
	result    Result
	err       error
}

// recover runs the configured strategy once. For Retry it re-invokes
// pattern.Execute after the computed backoff; for Rollback it invokes
// pattern.Rollback; for Abort it performs no pattern-level action (the
// caller moves straight to terminal Failed).
func (e *Executor) recover(ctx context.Context, p Pattern, pctx *Context, strategy RecoveryStrategy, attempt int) recoveryOutcome {
	switch strategy.Kind {
	case RecoveryRetry:
		if attempt > strategy.Retry.MaxAttempts {
			return recoveryOutcome{recovered: false, err: rherr.New("pattern.Recover", "pattern", rherr.ErrRecoveryFailed, "max recovery attempts exceeded")}
		}
		backoff := resilience.BackoffDuration(time.Duration(strategy.Retry.BackoffMs)*time.Millisecond, attempt, strategy.Retry.Exponential)
		select {
		case <-ctx.Done():
			return recoveryOutcome{recovered: false, err: ctx.Err()}
		case <-time.After(backoff):
		}
		res, err := p.Execute(ctx, pctx)
		if err != nil || !res.Success {
			return recoveryOutcome{recovered: false, result: res, err: err}
		}
		return recoveryOutcome{recovered: true, result: res}

	case RecoveryRollback:
		if strategy.Rollback.CheckpointID == "" {
			return recoveryOutcome{recovered: false, err: rherr.New("pattern.Recover", "pattern", rherr.ErrRollbackError, "no checkpoint to roll back to")}
		}
		if err := p.Rollback(ctx, pctx); err != nil {
			return recoveryOutcome{recovered: false, err: rherr.Wrap("pattern.Recover", "pattern", rherr.ErrRollbackError, err)}
		}
		return recoveryOutcome{recovered: false} // rolled back, still a failed run

	case RecoveryAbort:
		return recoveryOutcome{recovered: false}

	default:
		return recoveryOutcome{recovered: false}
	}
}
