package executor

import (
	"context"
	"time"

	"github.com/rkoval/flume/pkg/models"
)

const (
	// DefaultMaxParallel is the default ceiling on concurrently running steps.
	DefaultMaxParallel = 4
	// DefaultStepTimeout bounds a single backend call.
	DefaultStepTimeout = 15 * time.Minute
	// defaultEventBuffer sizes the event channel.
	defaultEventBuffer = 100
)

// SaveHook persists a task snapshot after a lifecycle transition. Hook
// errors are logged and do not affect execution.
type SaveHook func(ctx context.Context, task *models.Task) error

// Option configures an Executor.
type Option func(*Executor)

// WithMaxParallel sets the ceiling on concurrently running steps.
// Values below 1 keep the default.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.maxParallel = n
		}
	}
}

// WithStepTimeout bounds each backend call. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithSaveHook registers a persistence hook invoked after every step
// and task state transition.
func WithSaveHook(hook SaveHook) Option {
	return func(e *Executor) { e.saveHook = hook }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.eventBuffer = n
		}
	}
}
