package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/pkg/models"
)

func TestPlanRejectsEmptyDescription(t *testing.T) {
	p := New()
	_, err := p.Plan(context.Background(), Request{Description: "   "})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestPlanRejectsUnknownType(t *testing.T) {
	p := New()
	_, err := p.Plan(context.Background(), Request{Description: "do something", Type: "epic"})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for unknown type, got %v", err)
	}
}

func TestPlanSimpleBugFix(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description: "fix the login bug",
		Type:        models.TypeBugFix,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if wf.Complexity != models.ComplexitySimple {
		t.Fatalf("expected simple complexity, got %s", wf.Complexity)
	}
	if len(wf.Steps) != 2 {
		t.Fatalf("expected 2 steps for a simple bug fix, got %d", len(wf.Steps))
	}
	if wf.Steps[0].Role != models.RoleBuilder || wf.Steps[1].Role != models.RoleTester {
		t.Fatalf("expected [builder tester], got [%s %s]", wf.Steps[0].Role, wf.Steps[1].Role)
	}
	for _, s := range wf.Steps {
		if s.Role == models.RoleResearcher {
			t.Fatal("simple bug fix must not include a researcher step")
		}
	}

	// Tester scope tightens by complexity.
	scoped := false
	for _, c := range wf.Steps[1].Constraints {
		if c == "basic validation only" {
			scoped = true
		}
	}
	if !scoped {
		t.Fatalf("expected tester constraint 'basic validation only', got %v", wf.Steps[1].Constraints)
	}

	if len(wf.Steps[1].DependsOn) != 1 || wf.Steps[1].DependsOn[0] != wf.Steps[0].ID {
		t.Fatalf("tester should depend on builder, got %v", wf.Steps[1].DependsOn)
	}
	if wf.Mode != models.ModeSequential {
		t.Fatalf("single-chain workflow should run sequentially, got %s", wf.Mode)
	}
}

func TestPlanComplexFeatureIncludesResearchAndGrouping(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description: "implement a migration that refactors the schema across multiple files",
		Type:        models.TypeFeature,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if wf.Complexity != models.ComplexityComplex {
		t.Fatalf("expected complex, got %s", wf.Complexity)
	}
	roles := make(map[models.Role]*models.Step)
	for _, s := range wf.Steps {
		roles[s.Role] = s
	}
	research, ok := roles[models.RoleResearcher]
	if !ok {
		t.Fatal("complex feature should include a researcher step")
	}
	if !research.Optional {
		t.Fatal("researcher step should be optional")
	}

	tester, docs := roles[models.RoleTester], roles[models.RoleDocumenter]
	if tester == nil || docs == nil {
		t.Fatalf("expected tester and documenter steps, got %v", wf.Steps)
	}
	if tester.Group != docs.Group {
		t.Fatalf("tester and documenter should share a group, got %d and %d", tester.Group, docs.Group)
	}
	if wf.Mode != models.ModeGraph {
		t.Fatalf("workflow with a concurrent stage should use graph mode, got %s", wf.Mode)
	}
}

func TestPlanParallelOverrideRejectedWithDependencies(t *testing.T) {
	p := New()
	_, err := p.Plan(context.Background(), Request{
		Description: "fix the login bug",
		Type:        models.TypeBugFix,
		Mode:        models.ModeParallel,
	})
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for parallel override on dependent steps, got %v", err)
	}
}

func TestPlanSequentialOverrideAccepted(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description: "implement a migration across multiple files and services",
		Type:        models.TypeFeature,
		Mode:        models.ModeSequential,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if wf.Mode != models.ModeSequential {
		t.Fatalf("expected sequential override honored, got %s", wf.Mode)
	}
}

func TestPlanForceResearch(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description:   "fix the typo in the readme",
		Type:          models.TypeBugFix,
		ForceResearch: true,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if wf.Steps[0].Role != models.RoleResearcher {
		t.Fatalf("expected prepended researcher step, got %s", wf.Steps[0].Role)
	}
	if len(wf.Steps[1].DependsOn) != 1 || wf.Steps[1].DependsOn[0] != wf.Steps[0].ID {
		t.Fatalf("builder should depend on forced researcher, got %v", wf.Steps[1].DependsOn)
	}
}

func TestPlanAutoTypeInference(t *testing.T) {
	cases := []struct {
		desc string
		want models.TaskType
	}{
		{"fix the crash in startup", models.TypeBugFix},
		{"add pagination support", models.TypeFeature},
		{"review the auth changes", models.TypeReview},
		{"rename things everywhere", models.TypeAuto},
	}
	for _, tc := range cases {
		if got := inferType(tc.desc); got != tc.want {
			t.Errorf("inferType(%q) = %s, want %s", tc.desc, got, tc.want)
		}
	}
}

func TestPlanGenericFallback(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description: "tidy the dashboard layout",
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(wf.Steps) == 0 {
		t.Fatal("generic fallback produced no steps")
	}
	hasBuilder := false
	for _, s := range wf.Steps {
		if s.Role == models.RoleBuilder {
			hasBuilder = true
		}
	}
	if !hasBuilder {
		t.Fatalf("generic template should include a builder step, got %v", wf.Steps)
	}
}

func TestEstimateComplexity(t *testing.T) {
	cases := []struct {
		desc string
		want models.Complexity
	}{
		{"", models.ComplexityComplex},
		{"fix a typo", models.ComplexitySimple},
		{"refactor the storage layer", models.ComplexityComplex},
		{"migrate the schema to v2", models.ComplexityComplex},
		{strings.Repeat("long description ", 20), models.ComplexityComplex},
	}
	for _, tc := range cases {
		if got := EstimateComplexity(tc.desc); got != tc.want {
			t.Errorf("EstimateComplexity(%.30q) = %s, want %s", tc.desc, got, tc.want)
		}
	}
}

func TestPlanCustomWithoutBackend(t *testing.T) {
	p := New()
	wf, err := p.Plan(context.Background(), Request{
		Description: "run the quarterly dependency audit",
		Type:        models.TypeCustom,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(wf.Steps) != 1 || wf.Steps[0].Role != models.RoleCustom {
		t.Fatalf("expected single custom step, got %v", wf.Steps)
	}
}

func TestPlanCustomWithBackend(t *testing.T) {
	mock := backend.NewMockRunner()
	mock.Default = backend.MockResponse{
		Output: `Here is the plan:
[
  {"id": "scan", "role": "researcher", "instruction": "Scan the dependency tree", "optional": true},
  {"id": "upgrade", "role": "builder", "instruction": "Upgrade outdated modules", "depends_on": ["scan"]},
  {"id": "verify", "role": "tester", "instruction": "Run the test suite", "depends_on": ["upgrade"]}
]`,
		Usage: models.Usage{InputTokens: 100, OutputTokens: 50},
	}

	var planUsage models.Usage
	p := New(WithBackend(mock), WithPlanUsage(func(u models.Usage) { planUsage.Add(u) }))

	wf, err := p.Plan(context.Background(), Request{
		Description: "run the quarterly dependency audit",
		Type:        models.TypeCustom,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(wf.Steps) != 3 {
		t.Fatalf("expected 3 proposed steps, got %d", len(wf.Steps))
	}
	if wf.Steps[0].Role != models.RoleResearcher || !wf.Steps[0].Optional {
		t.Fatalf("first proposed step mismatched: %+v", wf.Steps[0])
	}
	if len(wf.Steps[1].DependsOn) != 1 || wf.Steps[1].DependsOn[0] != wf.Steps[0].ID {
		t.Fatalf("dependency slugs not re-keyed to step IDs: %v", wf.Steps[1].DependsOn)
	}
	if wf.Steps[1].Group != 1 || wf.Steps[2].Group != 2 {
		t.Fatalf("groups should follow dependency depth, got %d and %d", wf.Steps[1].Group, wf.Steps[2].Group)
	}
	if planUsage.TotalTokens() != 150 {
		t.Fatalf("planning usage not surfaced, got %d tokens", planUsage.TotalTokens())
	}
}

func TestPlanCustomBackendGarbageFailsAfterRetry(t *testing.T) {
	mock := backend.NewMockRunner()
	mock.Default = backend.MockResponse{Output: "I cannot produce a plan right now."}

	p := New(WithBackend(mock))
	_, err := p.Plan(context.Background(), Request{
		Description: "run the quarterly dependency audit",
		Type:        models.TypeCustom,
	})
	if !errors.Is(err, ErrPlanningBackend) {
		t.Fatalf("expected ErrPlanningBackend, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected one retry (2 calls), got %d", mock.CallCount())
	}
}

func TestNewTaskWrapsWorkflow(t *testing.T) {
	p := New()
	task, err := p.NewTask(context.Background(), Request{Description: "fix the broken pipeline"})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.ID == "" {
		t.Fatal("task id not assigned")
	}
	if task.Status != models.TaskStatusPending {
		t.Fatalf("expected pending task, got %s", task.Status)
	}
	if task.Type != models.TypeBugFix {
		t.Fatalf("expected inferred bug_fix type, got %s", task.Type)
	}
	if task.Workflow == nil || len(task.Workflow.Steps) == 0 {
		t.Fatal("task has no workflow")
	}
}
