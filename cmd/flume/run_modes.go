package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/rkoval/flume/internal/executor"
	"github.com/rkoval/flume/internal/tui"
	"github.com/rkoval/flume/pkg/models"
)

// runTaskHeadless executes the workflow while printing events to stdout.
func runTaskHeadless(ctx context.Context, exec *executor.Executor, task *models.Task, maxParallel int) error {
	fmt.Printf("Starting task: %s\n", task.Description)
	fmt.Printf("  Type: %s, complexity: %s\n", task.Type, task.Workflow.Complexity)
	fmt.Printf("  Mode: %s, steps: %d, max parallel: %d\n\n",
		task.Workflow.Mode, len(task.Workflow.Steps), maxParallel)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEventsHeadless(exec.Events())
	}()

	runErr := exec.Run(ctx, task)
	wg.Wait()

	fmt.Println()
	if runErr != nil {
		return fmt.Errorf("workflow failed: %w", runErr)
	}

	fmt.Printf("Done! (~%d tokens, $%.4f)\n", task.Usage.TotalTokens(), task.Usage.Cost)
	if task.Result != "" {
		fmt.Printf("\n%s\n", task.Result)
	}
	return nil
}

// runTaskWithTUI executes the workflow behind the progress TUI.
func runTaskWithTUI(ctx context.Context, exec *executor.Executor, task *models.Task) error {
	runDone := make(chan error, 1)
	go func() {
		runDone <- exec.Run(ctx, task)
	}()

	if err := tui.Run(task.Description, exec.Events()); err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	if err := <-runDone; err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}
	return nil
}

// consumeEventsHeadless prints executor events to stdout.
func consumeEventsHeadless(events <-chan executor.Event) {
	started := color.New(color.FgBlue)
	done := color.New(color.FgGreen)
	failed := color.New(color.FgRed)
	skipped := color.New(color.FgYellow)

	for event := range events {
		label := fmt.Sprintf("%s %s", event.Role, shortID(event.StepID))
		switch event.Type {
		case executor.EventStepStarted:
			started.Printf("[STARTED] %s\n", label)
		case executor.EventStepCompleted:
			done.Printf("[DONE] %s (%s, %d tokens)\n",
				label, event.Duration.Round(time.Second), event.Usage.TotalTokens())
		case executor.EventStepFailed:
			failed.Printf("[FAILED] %s: %v\n", label, event.Error)
		case executor.EventStepSkipped:
			skipped.Printf("[SKIPPED] %s: %s\n", label, event.Message)
		case executor.EventWorkflowDone:
			if event.Error != nil {
				failed.Printf("[WORKFLOW] failed: %v\n", event.Error)
			} else {
				done.Println("[WORKFLOW] complete")
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
