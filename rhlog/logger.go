// Package rhlog defines the minimal structured-logging interface every
// Rhema kernel component logs through: components never depend on a
// concrete logging backend, only on this interface, and a NoOpLogger is
// always a safe zero value.
package rhlog

import "context"

// Logger is the minimal leveled, structured logging interface.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAware lets a component tag its own structured logs without
// depending on a concrete implementation ("rhema/cache", "rhema/coordinator",
// ...).
type ComponentAware interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. It is the default for every component that
// is not explicitly given a Logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}

func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}

// WithComponent on a NoOpLogger is itself, trivially.
func (n NoOpLogger) WithComponent(string) Logger { return n }

// Component resolves a component-scoped logger from any Logger: if it's
// already ComponentAware, delegate; otherwise return it unchanged.
func Component(l Logger, name string) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	if ca, ok := l.(ComponentAware); ok {
		return ca.WithComponent(name)
	}
	return l
}
