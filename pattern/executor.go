package pattern

import (
	"context"
	"time"

	"github.com/fugue-ai/rhema-sub012/config"
	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// Executor runs a Pattern through its phase machine: Initializing →
// Validating → Executing → (Recovering → Executing)* → Finalizing →
// Terminal. It also owns the Monitor that fans out lifecycle events and
// aggregates statistics.
type Executor struct {
	cfg     config.PatternConfig
	logger  rhlog.Logger
	Monitor *Monitor
}

// NewExecutor builds an Executor. queueDepth sizes each monitor
// subscriber's bounded event queue.
func NewExecutor(cfg config.PatternConfig, queueDepth int, logger rhlog.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		logger:  rhlog.Component(logger, "pattern"),
		Monitor: NewMonitor(queueDepth),
	}
}

// defaultRetry builds the configured default Retry strategy from cfg, used
// when a caller runs a pattern without specifying its own strategy.
func (e *Executor) defaultRetry() RecoveryStrategy {
	return RecoveryStrategy{
		Kind: RecoveryRetry,
		Retry: RetryStrategy{
			MaxAttempts: e.cfg.DefaultMaxAttempts,
			BackoffMs:   int(e.cfg.DefaultBackoff / time.Millisecond),
			Exponential: true,
		},
	}
}

// Run executes p from Initializing to Terminal. strategy governs recovery
// on Executing failure; pass a zero RecoveryStrategy{} to use the
// executor's configured default Retry policy.
func (e *Executor) Run(ctx context.Context, p Pattern, pctx *Context, strategy RecoveryStrategy) RunResult {
	if strategy.Kind == "" {
		strategy = e.defaultRetry()
	}
	start := time.Now()
	name := p.Metadata().Name

	e.Monitor.emit(Event{Type: EventPatternStarted, PatternName: name, CorrelationID: pctx.CorrelationID, Phase: PhaseInitializing, At: time.Now()})

	phase := PhaseValidating
	e.changePhase(name, pctx, phase)

	validation, err := p.Validate(ctx, pctx)
	if err != nil || len(validation.Errors) > 0 {
		if err == nil {
			err = validationFailure(validation)
		}
		return e.terminal(name, pctx, start, StatusFailed, validation, Result{Error: err}, 0)
	}

	phase = PhaseExecuting
	e.changePhase(name, pctx, phase)

	recoveryAttempts := 0
	result, execErr := p.Execute(ctx, pctx)

	for (execErr != nil || !result.Success) && phase != PhaseTerminal {
		select {
		case <-ctx.Done():
			return e.terminal(name, pctx, start, StatusCancelled, validation, result, recoveryAttempts)
		default:
		}

		phase = PhaseRecovering
		e.changePhase(name, pctx, phase)
		recoveryAttempts++

		recoverStart := time.Now()
		e.Monitor.emit(Event{Type: EventRecoveryStarted, PatternName: name, CorrelationID: pctx.CorrelationID, Phase: phase, At: recoverStart})

		outcome := e.recover(ctx, p, pctx, strategy, recoveryAttempts)

		e.Monitor.emit(Event{
			Type: EventRecoveryFinished, PatternName: name, CorrelationID: pctx.CorrelationID, Phase: phase, At: time.Now(),
			Data: map[string]interface{}{"recovered": outcome.recovered, "duration": time.Since(recoverStart)},
		})

		if outcome.recovered {
			phase = PhaseExecuting
			e.changePhase(name, pctx, phase)
			result, execErr = outcome.result, nil
			continue
		}

		if outcome.err != nil {
			execErr = outcome.err
		}
		// A failed Retry round runs again while attempts remain; otherwise
		// the strategy gave up (retry exhausted, rollback completed, or
		// abort) and the run terminates.
		if strategy.Kind == RecoveryRetry {
			result = outcome.result
			if recoveryAttempts < strategy.Retry.MaxAttempts {
				continue
			}
		}
		break
	}

	if execErr != nil || !result.Success {
		if execErr == nil {
			execErr = rherr.New("pattern.Execute", "pattern", rherr.ErrExecutionError, "pattern execution did not succeed")
		}
		result.Error = execErr
		return e.terminal(name, pctx, start, StatusFailed, validation, result, recoveryAttempts)
	}

	e.changePhase(name, pctx, PhaseFinalizing)
	return e.terminal(name, pctx, start, StatusCompleted, validation, result, recoveryAttempts)
}

func (e *Executor) changePhase(name string, pctx *Context, phase Phase) {
	e.Monitor.emit(Event{Type: EventPhaseChanged, PatternName: name, CorrelationID: pctx.CorrelationID, Phase: phase, At: time.Now()})
}

func (e *Executor) terminal(name string, pctx *Context, start time.Time, status TerminalStatus, v ValidationResult, r Result, recoveryAttempts int) RunResult {
	e.changePhase(name, pctx, PhaseTerminal)

	evType := EventPatternCompleted
	if status != StatusCompleted {
		evType = EventPatternFailed
	}
	e.Monitor.emit(Event{
		Type: evType, PatternName: name, CorrelationID: pctx.CorrelationID, Phase: PhaseTerminal, At: time.Now(),
		Data: map[string]interface{}{"status": string(status)},
	})

	return RunResult{
		PatternName:      name,
		Status:           status,
		Validation:       v,
		Result:           r,
		RecoveryAttempts: recoveryAttempts,
		Duration:         time.Since(start),
	}
}

// StartMetricsSampling periodically emits an EventMetricSampled carrying the
// monitor's current Stats, at cfg.MetricsIntervalSeconds cadence.
func (e *Executor) StartMetricsSampling(ctx context.Context) {
	interval := time.Duration(e.cfg.MetricsIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := e.Monitor.Stats()
				e.Monitor.emit(Event{
					Type: EventMetricSampled, At: time.Now(),
					Data: map[string]interface{}{
						"total_patterns_monitored": stats.TotalPatternsMonitored,
						"success_rate":             stats.SuccessRate,
						"total_recoveries":         stats.TotalRecoveries,
						"successful_recoveries":    stats.SuccessfulRecoveries,
						"average_recovery_time":    stats.AverageRecoveryTime,
					},
				})
			}
		}
	}()
}
