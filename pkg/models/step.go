package models

import "time"

// StepStatus represents the current state of a step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step failed.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step never ran because a dependency
	// failed or the task was cancelled.
	StepStatusSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted,
		StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the step can no longer change state.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// Step is one role-scoped unit of delegated work within a task's workflow.
type Step struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`
	// Role describes the step's intent.
	Role Role `json:"role"`
	// Instruction is the scoped instruction text for the backend.
	Instruction string `json:"instruction"`
	// Constraints are declarative annotations attached by the planner
	// (e.g. "basic validation only").
	Constraints []string `json:"constraints,omitempty"`
	// DependsOn lists step IDs that must reach a terminal state first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Group is the execution group; steps sharing a group may run concurrently.
	Group int `json:"group"`
	// Optional marks a step whose failure does not fail the task.
	Optional bool `json:"optional,omitempty"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// Usage is the resource consumption reported for this step.
	Usage Usage `json:"usage"`
	// RawOutput is the unmodified backend output.
	RawOutput string `json:"raw_output,omitempty"`
	// Context is the compacted representation of RawOutput, set once on completion.
	Context *StepContext `json:"context,omitempty"`
	// Error contains the error message if the step failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when the step began executing.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the step reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepContext is the bounded, structured summary of a completed step's
// output, forwarded to dependent steps instead of the raw output.
// It is immutable after creation.
type StepContext struct {
	// Summary is a bounded-length summary of the step's output.
	Summary string `json:"summary"`
	// Files is the ordered list of distinct file paths the step touched.
	Files []string `json:"files,omitempty"`
	// Findings is the ordered list of short key findings.
	Findings []string `json:"findings,omitempty"`
	// SourceStepID is the ID of the step this context was produced from.
	SourceStepID string `json:"source_step_id"`
}

// Size returns the serialized size of the context in characters.
// This is the quantity the compactor bounds.
func (c *StepContext) Size() int {
	if c == nil {
		return 0
	}
	n := len(c.Summary)
	for _, f := range c.Files {
		n += len(f) + 1
	}
	for _, f := range c.Findings {
		n += len(f) + 1
	}
	return n
}

// Empty returns true if the context carries no information.
func (c *StepContext) Empty() bool {
	return c == nil || (c.Summary == "" && len(c.Files) == 0 && len(c.Findings) == 0)
}
