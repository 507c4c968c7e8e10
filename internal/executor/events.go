// Package executor runs workflow steps in the order their dependencies
// allow, forwarding compacted context between them and accounting usage.
package executor

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/rkoval/flume/pkg/models"
)

// EventType represents the type of executor event.
type EventType string

const (
	// EventStepCreated indicates a step was admitted to the workflow.
	EventStepCreated EventType = "step_created"
	// EventStepStarted indicates a step began executing on the backend.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a step completed successfully.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a step failed.
	EventStepFailed EventType = "step_failed"
	// EventStepSkipped indicates a step was skipped because a required
	// dependency failed or the run was cancelled.
	EventStepSkipped EventType = "step_skipped"
	// EventWorkflowDone indicates the whole workflow finished.
	EventWorkflowDone EventType = "workflow_done"
)

// Event represents a lifecycle event emitted by the executor.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the owning task.
	TaskID string
	// StepID is the ID of the related step, if applicable.
	StepID string
	// Role is the role of the related step, if applicable.
	Role models.Role
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Usage is the step's recorded usage on completion events, and the
	// task's aggregate usage on workflow_done.
	Usage models.Usage
	// Duration is the step's elapsed time (for completion events).
	Duration time.Duration
}

// EventEmitter handles event emission for the executor.
// It provides a simple, thread-safe way to emit events to subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	// Give the receiver 100ms to drain before dropping
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[executor] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (e.g., TUI) to receive updates.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
// This should be called when the executor run has finished.
func (e *EventEmitter) Close() {
	close(e.events)
}
