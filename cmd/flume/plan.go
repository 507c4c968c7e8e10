package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/internal/config"
	"github.com/rkoval/flume/internal/planner"
	"github.com/rkoval/flume/pkg/models"
)

var (
	planType     string
	planMode     string
	planResearch bool
)

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Show the workflow a task would run, without executing it",
	Long: `Plan a task and print the resulting workflow.

Displays the classified type and complexity, the chosen execution mode,
and each step with its role, dependencies, and scoping constraints.
Nothing is executed and nothing is persisted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planType, "type", "", "Task type: feature, bug_fix, review, or custom (default: auto-detect)")
	planCmd.Flags().StringVar(&planMode, "mode", "", "Execution mode: sequential, parallel, or graph (default: planner's choice)")
	planCmd.Flags().BoolVar(&planResearch, "research", false, "Include the research step even for simple tasks")
}

var (
	planHeaderStyle = lipgloss.NewStyle().Bold(true)
	planDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	planRoleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
)

func runPlan(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The backend is only needed when LLM-assisted planning is on.
	var runner backend.Runner
	if cfg.Planner.LLMPlanning {
		runner, err = buildRunner(cfg)
		if err != nil {
			return err
		}
	}

	pl, err := buildPlanner(cfg, runner)
	if err != nil {
		return err
	}

	wf, err := pl.Plan(context.Background(), planner.Request{
		Description:   description,
		Type:          models.TaskType(planType),
		Mode:          models.ExecutionMode(planMode),
		ForceResearch: planResearch,
	})
	if err != nil {
		return fmt.Errorf("plan task: %w", err)
	}

	fmt.Println(planHeaderStyle.Render("Workflow plan"))
	fmt.Printf("  complexity: %s\n", wf.Complexity)
	fmt.Printf("  mode:       %s\n", wf.Mode)
	fmt.Printf("  steps:      %d\n\n", len(wf.Steps))

	// Map IDs to 1-based positions for readable dependency references.
	position := make(map[string]int, len(wf.Steps))
	for i, step := range wf.Steps {
		position[step.ID] = i + 1
	}

	for i, step := range wf.Steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			var refs []string
			for _, dep := range step.DependsOn {
				refs = append(refs, fmt.Sprintf("#%d", position[dep]))
			}
			deps = strings.Join(refs, ", ")
		}
		optional := ""
		if step.Optional {
			optional = " (optional)"
		}
		fmt.Printf("  #%d %s%s\n", i+1, planRoleStyle.Render(string(step.Role)), optional)
		fmt.Printf("     %s\n", truncateLine(step.Instruction, 100))
		fmt.Println(planDimStyle.Render(fmt.Sprintf("     group %d, depends on %s", step.Group, deps)))
		for _, c := range step.Constraints {
			fmt.Println(planDimStyle.Render("     * " + c))
		}
	}

	return nil
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
