// Package planner turns a task description into a resolved workflow:
// a complexity classification, a role template, scoping constraints, and
// dependency/grouping assignments.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/internal/graph"
	"github.com/rkoval/flume/pkg/models"
)

// ErrInvalidTask indicates unusable planner input: an empty description or
// a declared type that is unrecognized and cannot be inferred.
var ErrInvalidTask = errors.New("invalid task")

// ErrPlanningBackend indicates the LLM-assisted planning call returned
// empty or unparseable output after the stricter-format retry.
var ErrPlanningBackend = errors.New("planning backend failed")

// Planner produces workflows. Planning itself executes no steps; the
// optional backend is used only for model-proposed graphs on custom tasks.
type Planner struct {
	templates *TemplateSet
	backend   backend.Runner
	planUsage func(models.Usage)
}

// Option configures a Planner.
type Option func(*Planner)

// WithTemplates replaces the built-in template set.
func WithTemplates(ts *TemplateSet) Option {
	return func(p *Planner) {
		if ts != nil {
			p.templates = ts
		}
	}
}

// WithBackend enables LLM-assisted planning for custom tasks.
func WithBackend(r backend.Runner) Option {
	return func(p *Planner) { p.backend = r }
}

// WithPlanUsage registers a hook receiving the usage of planning sub-calls.
// Planning calls are billed like ordinary steps but are not part of the
// returned workflow.
func WithPlanUsage(fn func(models.Usage)) Option {
	return func(p *Planner) { p.planUsage = fn }
}

// New creates a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{templates: defaultTemplates()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request is the planner input.
type Request struct {
	// Description is the user-supplied task description. Required.
	Description string
	// Type is the declared task type, or TypeAuto to infer it.
	Type models.TaskType
	// Mode overrides the execution mode when non-empty.
	Mode models.ExecutionMode
	// ForceResearch includes the researcher step even for simple tasks.
	ForceResearch bool
}

// NewTask plans a workflow and wraps it in a pending Task.
func (p *Planner) NewTask(ctx context.Context, req Request) (*models.Task, error) {
	wf, err := p.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	taskType := req.Type
	if taskType == "" || taskType == models.TypeAuto {
		taskType = inferType(req.Description)
	}
	return &models.Task{
		ID:          uuid.New().String(),
		Description: req.Description,
		Type:        taskType,
		Status:      models.TaskStatusPending,
		Workflow:    wf,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Plan resolves a request into a workflow with at least one step.
func (p *Planner) Plan(ctx context.Context, req Request) (*models.Workflow, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidTask)
	}

	taskType := req.Type
	if taskType == "" {
		taskType = models.TypeAuto
	}
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidTask, req.Type)
	}
	if taskType == models.TypeAuto {
		taskType = inferType(desc)
	}

	complexity := EstimateComplexity(desc)

	// Custom tasks have no template; they are either a single custom step
	// or, with a backend configured, a model-proposed graph.
	if taskType == models.TypeCustom {
		return p.planCustom(ctx, desc, complexity, req.Mode)
	}

	tmpl := p.templates.lookup(taskType, complexity)
	if req.ForceResearch && !hasRole(tmpl, models.RoleResearcher) {
		tmpl = append([]stepTemplate{
			{Role: models.RoleResearcher, Instruction: "Investigate the codebase areas relevant to: %s", Stage: 0, Optional: true},
		}, bump(tmpl)...)
	}

	steps := instantiate(tmpl, desc)
	assignDependencies(steps, tmpl)

	mode, err := resolveMode(req.Mode, steps)
	if err != nil {
		return nil, err
	}

	wf := &models.Workflow{Steps: steps, Mode: mode, Complexity: complexity}
	if err := validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// instantiate builds concrete steps from a template, attaching role
// defaults plus the template's scoping constraints.
func instantiate(tmpl []stepTemplate, desc string) []*models.Step {
	steps := make([]*models.Step, len(tmpl))
	for i, t := range tmpl {
		constraints := t.Role.DefaultConstraints()
		constraints = append(constraints, t.Constraints...)
		steps[i] = &models.Step{
			ID:          uuid.New().String(),
			Role:        t.Role,
			Instruction: fmt.Sprintf(t.Instruction, desc),
			Constraints: constraints,
			Group:       t.Stage,
			Optional:    t.Optional,
			Status:      models.StepStatusPending,
		}
	}
	return steps
}

// assignDependencies makes every step depend on all steps of the
// immediately preceding stage. Steps sharing a stage have no data
// dependency on each other and may run concurrently.
func assignDependencies(steps []*models.Step, tmpl []stepTemplate) {
	for i, t := range tmpl {
		if t.Stage == 0 {
			continue
		}
		for j, prev := range tmpl {
			if prev.Stage == t.Stage-1 {
				steps[i].DependsOn = append(steps[i].DependsOn, steps[j].ID)
			}
		}
	}
}

// resolveMode picks the execution mode. Without an override, workflows
// with a concurrent stage run in graph mode and single-chain workflows
// run sequentially. A parallel override is only accepted when the steps
// carry no dependencies at all.
func resolveMode(override models.ExecutionMode, steps []*models.Step) (models.ExecutionMode, error) {
	if override != "" {
		if !override.Valid() {
			return "", fmt.Errorf("%w: unknown execution mode %q", ErrInvalidTask, override)
		}
		if override == models.ModeParallel {
			for _, s := range steps {
				if len(s.DependsOn) > 0 {
					return "", fmt.Errorf("%w: parallel mode requires steps without dependencies", ErrInvalidTask)
				}
			}
		}
		return override, nil
	}

	stageCounts := make(map[int]int)
	for _, s := range steps {
		stageCounts[s.Group]++
	}
	for _, n := range stageCounts {
		if n > 1 {
			return models.ModeGraph, nil
		}
	}
	return models.ModeSequential, nil
}

// validate rejects workflows the executor could never run: empty step
// lists, unknown dependencies, and dependency cycles.
func validate(wf *models.Workflow) error {
	if len(wf.Steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", ErrInvalidTask)
	}
	g := graph.New()
	if err := g.Build(wf.Steps); err != nil {
		return fmt.Errorf("validate workflow: %w", err)
	}
	return nil
}

// typeKeywords maps description keywords to inferred task types,
// checked in order.
var typeKeywords = []struct {
	keyword string
	t       models.TaskType
}{
	{"fix", models.TypeBugFix},
	{"bug", models.TypeBugFix},
	{"broken", models.TypeBugFix},
	{"crash", models.TypeBugFix},
	{"regression", models.TypeBugFix},
	{"review", models.TypeReview},
	{"audit", models.TypeReview},
	{"add", models.TypeFeature},
	{"implement", models.TypeFeature},
	{"create", models.TypeFeature},
	{"support", models.TypeFeature},
	{"build", models.TypeFeature},
}

// inferType guesses a task type from description keywords. When nothing
// matches it returns TypeAuto, which selects the generic template.
func inferType(desc string) models.TaskType {
	lower := strings.ToLower(desc)
	for _, tk := range typeKeywords {
		if strings.Contains(lower, tk.keyword) {
			return tk.t
		}
	}
	log.Printf("[planner] no type keyword matched, using generic template")
	return models.TypeAuto
}

func hasRole(tmpl []stepTemplate, role models.Role) bool {
	for _, t := range tmpl {
		if t.Role == role {
			return true
		}
	}
	return false
}
