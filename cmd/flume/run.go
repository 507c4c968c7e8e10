package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/internal/compactor"
	"github.com/rkoval/flume/internal/config"
	"github.com/rkoval/flume/internal/executor"
	"github.com/rkoval/flume/internal/planner"
	"github.com/rkoval/flume/internal/state"
	"github.com/rkoval/flume/pkg/models"
)

var (
	runType        string
	runMode        string
	runMaxParallel int
	runResearch    bool
	runHeadless    bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Plan and execute a task workflow",
	Long: `Plan a task into role-scoped steps and execute them.

The task description is classified (type and complexity) and expanded
into a workflow from role templates. Steps with no dependency between
them run concurrently, bounded by --max-parallel.

Task types (--type, auto-detected by default):
  feature   research (complex only), build, test, review
  bug_fix   build and test, plus research and review when complex
  review    review only
  custom    a single free-form step, or a model-proposed graph
            when planner.llm_planning is enabled

Execution mode (--mode) overrides the planner's choice:
  sequential  one step at a time, each fed the previous step's context
  parallel    every step at once (rejected if steps depend on each other)
  graph       dependency order with concurrent independent steps`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runType, "type", "", "Task type: feature, bug_fix, review, or custom (default: auto-detect)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Execution mode: sequential, parallel, or graph (default: planner's choice)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Ceiling on concurrently running steps (default: from config)")
	runCmd.Flags().BoolVar(&runResearch, "research", false, "Include the research step even for simple tasks")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (print events to stdout)")
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, shutting down...")
		cancel()
	}()

	db, err := state.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	runner, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	// Planning sub-calls are billed to the task like any other usage.
	var planUsage models.Usage
	pl, err := buildPlanner(cfg, runner,
		planner.WithPlanUsage(func(u models.Usage) { planUsage.Add(u) }))
	if err != nil {
		return err
	}

	task, err := pl.NewTask(ctx, planner.Request{
		Description:   description,
		Type:          models.TaskType(runType),
		Mode:          models.ExecutionMode(runMode),
		ForceResearch: runResearch,
	})
	if err != nil {
		return fmt.Errorf("plan task: %w", err)
	}
	task.Usage.Add(planUsage)

	if err := db.SaveTask(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	maxParallel := cfg.Executor.MaxParallel
	if runMaxParallel > 0 {
		maxParallel = runMaxParallel
	}

	comp := compactor.New(compactor.Config{
		MaxSize:     cfg.Compactor.MaxSize,
		MinSummary:  cfg.Compactor.MinSummary,
		MaxFiles:    cfg.Compactor.MaxFiles,
		MaxFindings: cfg.Compactor.MaxFindings,
	})

	exec := executor.New(runner, comp,
		executor.WithMaxParallel(maxParallel),
		executor.WithStepTimeout(cfg.Executor.StepTimeout),
		executor.WithSaveHook(func(_ context.Context, t *models.Task) error {
			return db.SaveTask(t)
		}),
	)

	if runHeadless {
		return runTaskHeadless(ctx, exec, task, maxParallel)
	}
	return runTaskWithTUI(ctx, exec, task)
}

// buildRunner constructs the backend used for step execution. Planning
// and execution share one runner.
func buildRunner(cfg *config.Config) (backend.Runner, error) {
	runner, err := backend.NewAnthropicRunner(backend.ClientConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        cfg.Anthropic.APIKey,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return runner, nil
}

// buildPlanner constructs the planner, loading template overrides and
// enabling LLM-assisted planning per config.
func buildPlanner(cfg *config.Config, runner backend.Runner, extra ...planner.Option) (*planner.Planner, error) {
	opts := []planner.Option{}
	opts = append(opts, extra...)

	if cfg.Planner.TemplatesPath != "" {
		ts, err := planner.LoadTemplates(cfg.Planner.TemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		opts = append(opts, planner.WithTemplates(ts))
	}

	if cfg.Planner.LLMPlanning {
		opts = append(opts, planner.WithBackend(runner))
	}

	return planner.New(opts...), nil
}
