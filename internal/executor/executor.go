package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/internal/compactor"
	"github.com/rkoval/flume/internal/graph"
	"github.com/rkoval/flume/pkg/models"
)

// StepError reports the failure of a single step.
type StepError struct {
	StepID string
	Role   models.Role
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s) failed: %v", e.StepID, e.Role, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor runs a task's workflow against a backend. All task and step
// mutation happens on the goroutine that called Run; worker goroutines
// only perform backend calls and report back over a channel.
type Executor struct {
	backend     backend.Runner
	compactor   *compactor.Compactor
	emitter     *EventEmitter
	maxParallel int
	stepTimeout time.Duration
	saveHook    SaveHook
	eventBuffer int
}

// New creates an Executor for the given backend and compactor.
func New(runner backend.Runner, comp *compactor.Compactor, opts ...Option) *Executor {
	e := &Executor{
		backend:     runner,
		compactor:   comp,
		maxParallel: DefaultMaxParallel,
		stepTimeout: DefaultStepTimeout,
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.emitter = NewEventEmitter(e.eventBuffer)
	return e
}

// Events returns the executor's event channel. The channel is closed
// when Run returns.
func (e *Executor) Events() <-chan Event {
	return e.emitter.Events()
}

// DroppedEventCount returns the number of events dropped because the
// event channel stayed full.
func (e *Executor) DroppedEventCount() uint64 {
	return e.emitter.DroppedCount()
}

// Run executes the task's workflow to completion. It returns the first
// non-optional step failure, a context error on cancellation, or nil
// when the workflow completed. The task and its steps are updated in
// place throughout the run.
func (e *Executor) Run(ctx context.Context, task *models.Task) error {
	defer e.emitter.Close()

	if task == nil || task.Workflow == nil || len(task.Workflow.Steps) == 0 {
		return fmt.Errorf("task has no workflow steps")
	}

	task.Status = models.TaskStatusInProgress
	task.UpdatedAt = time.Now()
	e.save(ctx, task)

	for _, step := range task.Workflow.Steps {
		e.emit(Event{Type: EventStepCreated, TaskID: task.ID, StepID: step.ID, Role: step.Role})
	}

	var err error
	switch task.Workflow.Mode {
	case models.ModeSequential:
		err = e.runSequential(ctx, task)
	case models.ModeParallel, models.ModeGraph:
		err = e.runGraph(ctx, task)
	default:
		err = fmt.Errorf("unknown execution mode %q", task.Workflow.Mode)
	}

	e.finish(ctx, task, err)
	return err
}

// finish records the terminal task state and emits the final event.
func (e *Executor) finish(ctx context.Context, task *models.Task, runErr error) {
	now := time.Now()
	task.UpdatedAt = now
	task.CompletedAt = &now

	if runErr != nil {
		task.Status = models.TaskStatusFailed
		task.Error = runErr.Error()
		var se *StepError
		if errors.As(runErr, &se) {
			task.FailedStepID = se.StepID
		}
	} else {
		task.Status = models.TaskStatusCompleted
		if final := task.Workflow.FinalStep(); final != nil {
			task.Result = final.RawOutput
			if task.Result == "" && final.Context != nil {
				task.Result = final.Context.Summary
			}
		}
	}

	e.save(ctx, task)
	e.emit(Event{
		Type:   EventWorkflowDone,
		TaskID: task.ID,
		Error:  runErr,
		Usage:  task.Usage,
	})
}

// runSequential executes steps in declared order, forwarding each step's
// compacted context to the next. An optional failure forwards an empty
// context; a non-optional failure skips everything after it.
func (e *Executor) runSequential(ctx context.Context, task *models.Task) error {
	var stepErr error
	var forward *models.StepContext

	for _, step := range task.Workflow.Steps {
		if stepErr != nil || ctx.Err() != nil {
			e.applySkip(ctx, task, step, "earlier step failed or run cancelled")
			continue
		}

		e.applyStart(ctx, task, step)
		out := e.callBackend(ctx, step, forward)
		e.applyResult(ctx, task, step, out)
		task.Usage.Add(out.usage)

		if out.err != nil {
			if step.Optional {
				log.Printf("[executor] optional step %s failed, continuing: %v", step.ID, out.err)
				forward = &models.StepContext{SourceStepID: step.ID}
				continue
			}
			stepErr = &StepError{StepID: step.ID, Role: step.Role, Err: out.err}
			continue
		}
		forward = step.Context
	}

	if stepErr == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return stepErr
}

// completion is a worker report. Workers never mutate shared state; the
// scheduling loop applies these to the task.
type completion struct {
	kind      EventType
	stepID    string
	startedAt time.Time
	outcome   callOutcome
}

// runGraph executes steps as their dependencies allow, up to maxParallel
// at a time. A single loop owns all task and step mutation, the graph,
// usage aggregation, and the completed-context table.
func (e *Executor) runGraph(ctx context.Context, task *models.Task) error {
	g := graph.New()
	if err := g.Build(task.Workflow.Steps); err != nil {
		return fmt.Errorf("build workflow graph: %w", err)
	}

	completions := make(chan completion)
	sem := make(chan struct{}, e.maxParallel)
	launched := make(map[string]bool, len(task.Workflow.Steps))
	contexts := make(map[string]*models.StepContext, len(task.Workflow.Steps))
	running := 0
	var stepErr error

	for {
		if ctx.Err() == nil {
			for _, id := range g.Ready() {
				if launched[id] {
					continue
				}
				launched[id] = true
				running++
				step := g.Step(id)
				input := e.mergeInputs(step, contexts)
				go e.worker(ctx, sem, step, input, completions)
			}
		}

		// Steps whose required dependency failed will never become
		// ready. Skipping them can expose further blocked steps.
		for {
			blocked := g.Blocked()
			if len(blocked) == 0 {
				break
			}
			for _, id := range blocked {
				g.MarkSkipped(id)
				e.applySkip(ctx, task, g.Step(id), "dependency failed")
			}
		}

		if running == 0 {
			if ctx.Err() != nil {
				for _, step := range task.Workflow.Steps {
					if !step.Status.Terminal() {
						g.MarkSkipped(step.ID)
						e.applySkip(ctx, task, step, "run cancelled")
					}
				}
				if stepErr != nil {
					return stepErr
				}
				return ctx.Err()
			}
			if g.Done() {
				return stepErr
			}
			return fmt.Errorf("executor stalled with %d unfinished steps", g.Size()-len(launched))
		}

		msg := <-completions
		step := g.Step(msg.stepID)

		switch msg.kind {
		case EventStepStarted:
			step.Status = models.StepStatusRunning
			step.StartedAt = &msg.startedAt
			task.UpdatedAt = time.Now()
			e.save(ctx, task)
			e.emit(Event{Type: EventStepStarted, TaskID: task.ID, StepID: step.ID, Role: step.Role})

		default:
			running--
			e.applyResult(ctx, task, step, msg.outcome)
			task.Usage.Add(msg.outcome.usage)
			if msg.outcome.err != nil {
				g.MarkFailed(step.ID, step.Optional)
				if !step.Optional && stepErr == nil {
					stepErr = &StepError{StepID: step.ID, Role: step.Role, Err: msg.outcome.err}
				}
				if step.Optional {
					contexts[step.ID] = &models.StepContext{SourceStepID: step.ID}
				}
			} else {
				g.MarkCompleted(step.ID)
				contexts[step.ID] = step.Context
			}
		}
	}
}

// worker runs one step's backend call and reports lifecycle messages.
// It reads the step but never writes it.
func (e *Executor) worker(ctx context.Context, sem chan struct{}, step *models.Step, input *models.StepContext, completions chan<- completion) {
	sem <- struct{}{}
	defer func() { <-sem }()

	completions <- completion{kind: EventStepStarted, stepID: step.ID, startedAt: time.Now()}
	out := e.callBackend(ctx, step, input)
	completions <- completion{kind: EventStepCompleted, stepID: step.ID, outcome: out}
}

// mergeInputs builds a step's forwarded context from its dependencies'
// compacted contexts. Dependencies without a recorded context (failed
// optional steps) contribute nothing.
func (e *Executor) mergeInputs(step *models.Step, contexts map[string]*models.StepContext) *models.StepContext {
	if len(step.DependsOn) == 0 {
		return nil
	}
	deps := make([]*models.StepContext, 0, len(step.DependsOn))
	for _, id := range step.DependsOn {
		deps = append(deps, contexts[id])
	}
	merged := e.compactor.Merge(step.ID, deps...)
	return &merged
}

// callOutcome is the result of one backend invocation.
type callOutcome struct {
	output   string
	usage    models.Usage
	stepCtx  *models.StepContext
	err      error
	duration time.Duration
}

// callBackend invokes the backend for a step, retrying once on a
// transient error, and compacts the output.
func (e *Executor) callBackend(ctx context.Context, step *models.Step, input *models.StepContext) callOutcome {
	start := time.Now()

	res, err := e.invoke(ctx, step, input)
	if err != nil && backend.IsTransient(err) && ctx.Err() == nil {
		log.Printf("[executor] step %s hit transient error, retrying once: %v", step.ID, err)
		res, err = e.invoke(ctx, step, input)
	}
	if err != nil {
		return callOutcome{err: err, duration: time.Since(start)}
	}

	raw := res.Output
	if len(res.TouchedFiles) > 0 {
		var b strings.Builder
		b.WriteString(raw)
		b.WriteString("\n\nFiles:\n")
		for _, f := range res.TouchedFiles {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
		raw = b.String()
	}
	compacted := e.compactor.Compact(raw, step.ID)

	return callOutcome{
		output:   res.Output,
		usage:    res.Usage,
		stepCtx:  &compacted,
		duration: time.Since(start),
	}
}

func (e *Executor) invoke(ctx context.Context, step *models.Step, input *models.StepContext) (*backend.Result, error) {
	callCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	return e.backend.Execute(callCtx, backend.Request{
		Role:        step.Role,
		Instruction: step.Instruction,
		Context:     input,
		Constraints: step.Constraints,
	})
}

// applyStart transitions a step to running. Used by the sequential path;
// the graph path applies started messages from workers instead.
func (e *Executor) applyStart(ctx context.Context, task *models.Task, step *models.Step) {
	now := time.Now()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now
	task.UpdatedAt = now
	e.save(ctx, task)
	e.emit(Event{Type: EventStepStarted, TaskID: task.ID, StepID: step.ID, Role: step.Role})
}

// applyResult records a finished backend call on the step and emits the
// matching event.
func (e *Executor) applyResult(ctx context.Context, task *models.Task, step *models.Step, out callOutcome) {
	now := time.Now()
	step.CompletedAt = &now
	step.Usage = out.usage
	task.UpdatedAt = now

	if out.err != nil {
		step.Status = models.StepStatusFailed
		step.Error = out.err.Error()
		e.save(ctx, task)
		e.emit(Event{
			Type:     EventStepFailed,
			TaskID:   task.ID,
			StepID:   step.ID,
			Role:     step.Role,
			Error:    out.err,
			Usage:    out.usage,
			Duration: out.duration,
		})
		return
	}

	step.Status = models.StepStatusCompleted
	step.RawOutput = out.output
	step.Context = out.stepCtx
	e.save(ctx, task)
	e.emit(Event{
		Type:     EventStepCompleted,
		TaskID:   task.ID,
		StepID:   step.ID,
		Role:     step.Role,
		Usage:    out.usage,
		Duration: out.duration,
	})
}

// applySkip marks a step skipped and emits the event.
func (e *Executor) applySkip(ctx context.Context, task *models.Task, step *models.Step, reason string) {
	if step == nil || step.Status.Terminal() {
		return
	}
	step.Status = models.StepStatusSkipped
	step.Error = reason
	task.UpdatedAt = time.Now()
	e.save(ctx, task)
	e.emit(Event{Type: EventStepSkipped, TaskID: task.ID, StepID: step.ID, Role: step.Role, Message: reason})
}

func (e *Executor) emit(ev Event) {
	ev.Timestamp = time.Now()
	e.emitter.Emit(ev)
}

// save invokes the persistence hook. Hook failures are logged, never fatal.
func (e *Executor) save(ctx context.Context, task *models.Task) {
	if e.saveHook == nil {
		return
	}
	if err := e.saveHook(ctx, task); err != nil {
		log.Printf("[executor] save hook failed for task %s: %v", task.ID, err)
	}
}
