package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// fakePattern is a test double whose behavior is driven by closures so
// individual tests can script validation/execution/rollback outcomes.
type fakePattern struct {
	name       string
	validate   func(ctx context.Context, pctx *Context) (ValidationResult, error)
	execute    func(ctx context.Context, pctx *Context) (Result, error)
	rollback   func(ctx context.Context, pctx *Context) error
	execCalls  int
	rollbacks  int
}

func (p *fakePattern) Metadata() Metadata { return Metadata{Name: p.name} }

func (p *fakePattern) Validate(ctx context.Context, pctx *Context) (ValidationResult, error) {
	if p.validate != nil {
		return p.validate(ctx, pctx)
	}
	return ValidationResult{IsValid: true}, nil
}

func (p *fakePattern) Execute(ctx context.Context, pctx *Context) (Result, error) {
	p.execCalls++
	if p.execute != nil {
		return p.execute(ctx, pctx)
	}
	return Result{Success: true}, nil
}

func (p *fakePattern) Rollback(ctx context.Context, pctx *Context) error {
	p.rollbacks++
	if p.rollback != nil {
		return p.rollback(ctx, pctx)
	}
	return nil
}

func testExecutor() *Executor {
	cfg := config.PatternConfig{DefaultMaxAttempts: 3, DefaultBackoff: time.Millisecond, MetricsIntervalSeconds: 1}
	return NewExecutor(cfg, 32, rhlog.NoOpLogger{})
}

func TestExecutor_RunSucceedsOnFirstExecute(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{name: "ok"}

	run := e.Run(context.Background(), p, &Context{CorrelationID: "c1"}, RecoveryStrategy{})

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 0, run.RecoveryAttempts)
	assert.Equal(t, 1, p.execCalls)
}

func TestExecutor_RunFailsValidationWithoutExecuting(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{
		name: "bad-validate",
		validate: func(ctx context.Context, pctx *Context) (ValidationResult, error) {
			return ValidationResult{IsValid: false, Errors: []string{"missing field"}}, nil
		},
	}

	run := e.Run(context.Background(), p, &Context{}, RecoveryStrategy{})

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 0, p.execCalls)
}

func TestExecutor_RetryStrategyRecoversAfterTransientFailure(t *testing.T) {
	e := testExecutor()
	attempts := 0
	p := &fakePattern{
		name: "flaky",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			attempts++
			if attempts < 2 {
				return Result{Success: false}, errors.New("transient")
			}
			return Result{Success: true}, nil
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryRetry, Retry: RetryStrategy{MaxAttempts: 3, BackoffMs: 1}}
	run := e.Run(context.Background(), p, &Context{}, strategy)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 1, run.RecoveryAttempts)
}

func TestExecutor_RetryStrategyExhaustsAndFails(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{
		name: "always-fails",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			return Result{Success: false}, errors.New("boom")
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryRetry, Retry: RetryStrategy{MaxAttempts: 2, BackoffMs: 1}}
	run := e.Run(context.Background(), p, &Context{}, strategy)

	assert.Equal(t, StatusFailed, run.Status)
	assert.GreaterOrEqual(t, run.RecoveryAttempts, 2)
}

func TestExecutor_RollbackStrategyInvokesRollback(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{
		name: "needs-rollback",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			return Result{Success: false}, errors.New("boom")
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryRollback, Rollback: RollbackStrategy{CheckpointID: "cp1"}}
	run := e.Run(context.Background(), p, &Context{}, strategy)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 1, p.rollbacks)
}

func TestExecutor_RollbackWithoutCheckpointFails(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{
		name: "needs-rollback",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			return Result{Success: false}, errors.New("boom")
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryRollback, Rollback: RollbackStrategy{}}
	run := e.Run(context.Background(), p, &Context{}, strategy)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 0, p.rollbacks)
}

func TestExecutor_AbortStrategyGoesStraightToFailed(t *testing.T) {
	e := testExecutor()
	p := &fakePattern{
		name: "abort-me",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			return Result{Success: false}, errors.New("boom")
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryAbort, Abort: AbortStrategy{CleanupResources: true}}
	run := e.Run(context.Background(), p, &Context{}, strategy)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 1, run.RecoveryAttempts)
}

func TestExecutor_CancelledContextYieldsCancelledStatus(t *testing.T) {
	e := testExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakePattern{
		name: "slow",
		execute: func(ctx context.Context, pctx *Context) (Result, error) {
			return Result{Success: false}, errors.New("boom")
		},
	}

	strategy := RecoveryStrategy{Kind: RecoveryRetry, Retry: RetryStrategy{MaxAttempts: 5, BackoffMs: 1}}
	run := e.Run(ctx, p, &Context{}, strategy)

	assert.Equal(t, StatusCancelled, run.Status)
}

func TestExecutor_MonitorTracksStatsAcrossRuns(t *testing.T) {
	e := testExecutor()
	ok := &fakePattern{name: "ok"}
	fail := &fakePattern{name: "fail", execute: func(ctx context.Context, pctx *Context) (Result, error) {
		return Result{Success: false}, errors.New("boom")
	}}

	e.Run(context.Background(), ok, &Context{}, RecoveryStrategy{})
	e.Run(context.Background(), fail, &Context{}, RecoveryStrategy{Kind: RecoveryAbort})

	stats := e.Monitor.Stats()
	assert.Equal(t, int64(2), stats.TotalPatternsMonitored)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.0001)
	assert.Equal(t, int64(1), stats.TotalRecoveries)
}

func TestMonitor_SubscriberReceivesEventsInOrder(t *testing.T) {
	e := testExecutor()
	e.Monitor.Subscribe("sub1")
	defer e.Monitor.Unsubscribe("sub1")

	p := &fakePattern{name: "ordered"}
	e.Run(context.Background(), p, &Context{CorrelationID: "c1"}, RecoveryStrategy{})

	events := e.Monitor.Drain("sub1")
	require.NotEmpty(t, events)
	assert.Equal(t, EventPatternStarted, events[0].Type)
	assert.Equal(t, EventPatternCompleted, events[len(events)-1].Type)
}

func TestMonitor_BoundedQueueDropsOldestAndCountsLoss(t *testing.T) {
	m := NewMonitor(2)
	m.Subscribe("sub")
	for i := 0; i < 5; i++ {
		m.emit(Event{Type: EventMetricSampled, At: time.Now()})
	}
	events := m.Drain("sub")
	assert.Len(t, events, 2)
	assert.Equal(t, int64(3), m.LostEvents("sub"))
}
