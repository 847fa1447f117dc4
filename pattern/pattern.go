// Package pattern implements the Pattern Executor: coordination patterns
// run through a validated, monitored, recoverable phase machine, and can be
// composed from smaller patterns via dependency-ordered composition rules.
package pattern

import (
	"context"
	"time"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// Metadata describes a Pattern's identity, independent of any particular
// execution.
type Metadata struct {
	Name        string
	Version     string
	Description string
}

// ValidationResult is what Pattern.Validate returns: non-empty Errors abort
// the run, Warnings are recorded and passed through.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// Result is what Pattern.Execute returns.
type Result struct {
	Success bool
	Data    map[string]interface{}
	Metrics map[string]float64
	Error   error
}

// Context is the execution context threaded through every Pattern call -
// the coordination-pattern analogue of a request scope.
type Context struct {
	CorrelationID string
	Scope         string
	Data          map[string]interface{}
}

// Pattern is the coordination-pattern capability: metadata, validate,
// execute, rollback.
type Pattern interface {
	Metadata() Metadata
	Validate(ctx context.Context, pctx *Context) (ValidationResult, error)
	Execute(ctx context.Context, pctx *Context) (Result, error)
	Rollback(ctx context.Context, pctx *Context) error
}

// Phase is a pattern run's position in its execution state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseValidating   Phase = "validating"
	PhaseExecuting    Phase = "executing"
	PhaseRecovering   Phase = "recovering"
	PhaseFinalizing   Phase = "finalizing"
	PhaseTerminal     Phase = "terminal"
)

// TerminalStatus is the final disposition of a run once it reaches
// PhaseTerminal.
type TerminalStatus string

const (
	StatusCompleted TerminalStatus = "completed"
	StatusFailed    TerminalStatus = "failed"
	StatusCancelled TerminalStatus = "cancelled"
)

// RunResult is what Executor.Run returns: the final phase/status, the
// pattern's own Result if it reached Executing, validation warnings, and
// how many recovery attempts were spent.
type RunResult struct {
	PatternName     string
	Status          TerminalStatus
	Validation      ValidationResult
	Result          Result
	RecoveryAttempts int
	Duration        time.Duration
}

func validationFailure(v ValidationResult) error {
	return rherr.New("pattern.Validate", "pattern", rherr.ErrValidationFailed,
		"pattern validation failed: "+joinErrors(v.Errors))
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
