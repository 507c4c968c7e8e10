package models

// ExecutionMode declares how a workflow's steps are scheduled.
type ExecutionMode string

const (
	// ModeSequential runs steps strictly in declared order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs all steps concurrently with no forwarded context.
	ModeParallel ExecutionMode = "parallel"
	// ModeGraph schedules steps by their dependency sets.
	ModeGraph ExecutionMode = "graph"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeGraph:
		return true
	default:
		return false
	}
}

// Complexity classifies a task for workflow scoping.
type Complexity string

const (
	// ComplexitySimple tasks get minimal workflows without optional roles.
	ComplexitySimple Complexity = "simple"
	// ComplexityComplex tasks get investigative roles and deeper verification.
	ComplexityComplex Complexity = "complex"
)

// Workflow is the resolved sequence or graph of steps for one task.
// It is produced once by the planner; only step status fields mutate
// during execution.
type Workflow struct {
	// Steps is the ordered step list.
	Steps []*Step `json:"steps"`
	// Mode is the declared concurrency mode.
	Mode ExecutionMode `json:"mode"`
	// Complexity is the classification that scoped the steps.
	Complexity Complexity `json:"complexity"`
}

// FinalStep returns the step whose output becomes the task result:
// the last step in declared order. Returns nil for an empty workflow.
func (w *Workflow) FinalStep() *Step {
	if w == nil || len(w.Steps) == 0 {
		return nil
	}
	return w.Steps[len(w.Steps)-1]
}

// Step returns the step with the given ID, or nil if not found.
func (w *Workflow) Step(id string) *Step {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
