// Package types defines core contracts for the task orchestration library
package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Func is the unit of deferred work. It runs when invoked, observes
// cancellation through its context, and reports its outcome through
// the explicit error return. Every wrapper in this library consumes
// and produces this shape, so composition is plain function
// application.
type Func[R any] func(ctx context.Context) (R, error)

// Task couples a Func with a stable identity for submission to a
// pool. Cancellable controls whether an aborted token removes the
// task from the queue before it starts.
type Task[R any] struct {
	// ID identifies the task in logs and stats
	ID string

	// Run is the work to perform
	Run Func[R]

	// Cancellable allows eager removal from a queue on token abort
	Cancellable bool
}

// NewTask creates a cancellable task with a generated ID
func NewTask[R any](run Func[R]) *Task[R] {
	return &Task[R]{
		ID:          uuid.NewString(),
		Run:         run,
		Cancellable: true,
	}
}

// NewTaskWithID creates a cancellable task with a caller-chosen ID
func NewTaskWithID[R any](id string, run Func[R]) *Task[R] {
	return &Task[R]{
		ID:          id,
		Run:         run,
		Cancellable: true,
	}
}

// NewPinnedTask creates a task that ignores token aborts once
// submitted. It runs even when its submission token aborts while it
// waits in a queue.
func NewPinnedTask[R any](run Func[R]) *Task[R] {
	return &Task[R]{
		ID:  uuid.NewString(),
		Run: run,
	}
}

// Result defines the outcome of a settled execution
type Result[R any] struct {
	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Duration is the execution time
	Duration time.Duration
}

// Logger defines the logging interface used across the library.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NopLogger discards all log output
type NopLogger struct{}

func (NopLogger) Debugf(format string, args ...interface{}) {}
func (NopLogger) Infof(format string, args ...interface{})  {}
func (NopLogger) Warnf(format string, args ...interface{})  {}
func (NopLogger) Errorf(format string, args ...interface{}) {}
