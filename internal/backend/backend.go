// Package backend defines the step executor adapter: the external
// capability that performs a step's work and reports output and usage.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/rkoval/flume/pkg/models"
)

// Request describes one step execution.
type Request struct {
	// Role selects the system prompt and default behavior.
	Role models.Role
	// Instruction is the scoped instruction text for this step.
	Instruction string
	// Context is the forwarded context from upstream steps, possibly empty.
	Context *models.StepContext
	// Constraints are declarative annotations from the planner.
	Constraints []string
}

// Result is the raw outcome of one step execution.
type Result struct {
	// Output is the free-form text produced by the backend.
	Output string
	// Usage is the resource consumption of this call.
	Usage models.Usage
	// TouchedFiles lists file paths the backend reported reading or writing.
	TouchedFiles []string
}

// Runner executes role-scoped instructions against a reasoning backend.
// Implementations must honor ctx cancellation: Execute is treated as a
// potentially long-running blocking call.
type Runner interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Error is a classified backend failure. Transient errors are eligible
// for a single executor-level retry; fatal errors are not retried.
type Error struct {
	// Transient indicates the failure may succeed on retry.
	Transient bool
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient backend error: %v", e.Err)
	}
	return fmt.Sprintf("backend error: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient returns true if err is a backend error marked transient.
func IsTransient(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Transient
}
