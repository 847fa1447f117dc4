// Package rherr defines the error taxonomy shared by every Rhema kernel
// component: safety violations, resource errors, transport errors, data
// errors, pattern errors, and cancellation.
package rherr

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison via errors.Is(). Component code should wrap
// one of these with Wrap/New rather than minting ad-hoc errors, so callers
// can dispatch on Kind without string matching.
var (
	// Safety violations - always surfaced, never recovered internally.
	ErrContextConsistency    = errors.New("context consistency violation")
	ErrDependencyIntegrity   = errors.New("dependency integrity violation")
	ErrCircularDependency    = errors.New("circular dependency violation")
	ErrAgentCoordination     = errors.New("agent coordination violation")
	ErrLockConsistency       = errors.New("lock consistency violation")
	ErrSyncStatusConsistency = errors.New("sync status consistency violation")
	ErrResourceBounds        = errors.New("resource bounds violation")

	// Resource errors
	ErrLockTimeout          = errors.New("lock acquisition timed out")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrBudgetExceeded       = errors.New("budget exceeded")

	// Transport errors - downgraded to a miss/skip wherever non-essential.
	ErrTransport = errors.New("transport error")

	// Data errors
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrMalformedEntry    = errors.New("malformed entry")

	// Pattern errors
	ErrValidationFailed = errors.New("pattern validation failed")
	ErrExecutionError   = errors.New("pattern execution error")
	ErrRecoveryFailed   = errors.New("pattern recovery failed")
	ErrRollbackError    = errors.New("pattern rollback error")

	// Cancellation - always surfaced, never retried implicitly.
	ErrCancelled = errors.New("operation cancelled")

	// Generic not-found / already-exists, used across components.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Synthesis precondition: fewer sources than min_source_count.
	ErrInsufficientData = errors.New("insufficient data for synthesis")
)

// KernelError is the structured error every component boundary returns. It
// carries enough context for programmatic dispatch (Kind) and for a human
// operator to locate the failure (Component, CorrelationID).
type KernelError struct {
	Op            string // operation that failed, e.g. "coordinator.Acquire"
	Kind          error  // one of the sentinels above, for errors.Is/As dispatch
	Component     string // originating component, e.g. "cache", "coordinator"
	CorrelationID string // request/agent/pattern id, if any
	Message       string // human-readable detail
	Err           error  // wrapped underlying error, if any
}

func (e *KernelError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Op, e.CorrelationID, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *KernelError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// New constructs a KernelError wrapping one of the sentinel Kind values.
func New(op, component string, kind error, message string) *KernelError {
	return &KernelError{Op: op, Component: component, Kind: kind, Message: message}
}

// Wrap constructs a KernelError that additionally preserves an underlying
// error for errors.Unwrap chains (e.g. a driver error behind ErrTransport).
func Wrap(op, component string, kind error, err error) *KernelError {
	return &KernelError{Op: op, Component: component, Kind: kind, Err: err, Message: err.Error()}
}

// WithCorrelation returns a copy of e tagged with a correlation id.
func (e *KernelError) WithCorrelation(id string) *KernelError {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// IsSafetyViolation reports whether err is one of the safety violations.
func IsSafetyViolation(err error) bool {
	for _, k := range []error{
		ErrContextConsistency, ErrDependencyIntegrity, ErrCircularDependency,
		ErrAgentCoordination, ErrLockConsistency, ErrSyncStatusConsistency,
		ErrResourceBounds,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsTransport reports whether err originates from a transport failure,
// meaning callers should downgrade it (cache miss, warming skip) rather than
// fail the operation outright.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsRetryable reports whether err is a transient failure worth retrying:
// a transport error or a lock timeout. It only classifies; it retries
// nothing itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrLockTimeout)
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
