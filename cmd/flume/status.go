package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoval/flume/internal/config"
	"github.com/rkoval/flume/internal/state"
	"github.com/rkoval/flume/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show recent tasks and their step state",
	Long: `Display persisted task state.

Without arguments, lists recent tasks. With a task ID, shows the task's
workflow steps, their statuses, and token usage.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum number of tasks to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.StatePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No tasks recorded. Run 'flume run <task>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return displayTask(db, args[0])
	}
	return displayRecentTasks(db)
}

// displayRecentTasks lists recent tasks, newest first.
func displayRecentTasks(db *state.DB) error {
	tasks, err := db.ListTasks(statusLimit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks recorded. Run 'flume run <task>' to start.")
		return nil
	}

	fmt.Printf("%-10s %-12s %-10s %-10s %s\n", "ID", "STATUS", "TYPE", "TOKENS", "DESCRIPTION")
	for _, t := range tasks {
		fmt.Printf("%-10s %-12s %-10s %-10d %s\n",
			shortID(t.ID), t.Status, t.Type, t.Usage.TotalTokens(), truncateLine(t.Description, 60))
	}
	return nil
}

// displayTask shows one task with its workflow steps.
func displayTask(db *state.DB, id string) error {
	task, err := db.GetTask(id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		// Allow short ID prefixes from the list view.
		task, err = findTaskByPrefix(db, id)
		if err != nil {
			return err
		}
	}
	if task == nil {
		return fmt.Errorf("task %q not found", id)
	}

	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("  Description: %s\n", task.Description)
	fmt.Printf("  Type: %s, status: %s\n", task.Type, task.Status)
	fmt.Printf("  Tokens: %d (in %d, out %d, cache %d), cost $%.4f\n",
		task.Usage.TotalTokens(), task.Usage.InputTokens, task.Usage.OutputTokens,
		task.Usage.CacheTokens, task.Usage.Cost)
	if task.Error != "" {
		fmt.Printf("  Error: %s\n", task.Error)
	}
	fmt.Printf("  Created: %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", task.CompletedAt.Format(time.RFC3339))
	}

	if task.Workflow == nil || len(task.Workflow.Steps) == 0 {
		return nil
	}

	fmt.Printf("\n  Steps (%s mode):\n", task.Workflow.Mode)
	for i, step := range task.Workflow.Steps {
		marker := statusMarker(step.Status)
		fmt.Printf("  %s #%d %-12s %-10s %d tokens\n",
			marker, i+1, step.Role, step.Status, step.Usage.TotalTokens())
		if step.Error != "" {
			fmt.Printf("       %s\n", step.Error)
		}
	}
	return nil
}

// findTaskByPrefix resolves a short ID prefix against recent tasks.
func findTaskByPrefix(db *state.DB, prefix string) (*models.Task, error) {
	tasks, err := db.ListTasks(200)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for _, t := range tasks {
		if len(t.ID) >= len(prefix) && t.ID[:len(prefix)] == prefix {
			return db.GetTask(t.ID)
		}
	}
	return nil, nil
}

func statusMarker(s models.StepStatus) string {
	switch s {
	case models.StepStatusCompleted:
		return "✓"
	case models.StepStatusFailed:
		return "✗"
	case models.StepStatusSkipped:
		return "-"
	case models.StepStatusRunning:
		return ">"
	default:
		return "·"
	}
}
