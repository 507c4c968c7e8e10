package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task's workflow is executing.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates every step finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates a non-optional step failed or planning aborted.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskType is the declared category of a task.
type TaskType string

const (
	// TypeFeature is new functionality.
	TypeFeature TaskType = "feature"
	// TypeBugFix is a targeted defect fix.
	TypeBugFix TaskType = "bug_fix"
	// TypeReview is a review-only task with no build step.
	TypeReview TaskType = "review"
	// TypeCustom carries caller-defined steps.
	TypeCustom TaskType = "custom"
	// TypeAuto asks the planner to infer the type from the description.
	TypeAuto TaskType = "auto"
)

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TypeFeature, TypeBugFix, TypeReview, TypeCustom, TypeAuto:
		return true
	default:
		return false
	}
}

// Task represents one unit of user work: a description resolved into a
// workflow and executed to a terminal status.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the user-supplied task description.
	Description string `json:"description"`
	// Type is the declared task type.
	Type TaskType `json:"type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Workflow is the resolved step list, produced once by the planner.
	Workflow *Workflow `json:"workflow,omitempty"`
	// Result is the final step's output once the task completes.
	Result string `json:"result,omitempty"`
	// Error contains the originating step's error if the task failed.
	Error string `json:"error,omitempty"`
	// FailedStepID identifies which step caused a failure, if any.
	FailedStepID string `json:"failed_step_id,omitempty"`
	// Usage is the aggregate resource consumption across all steps that ran.
	Usage Usage `json:"usage"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal returns true if the task can no longer change state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
