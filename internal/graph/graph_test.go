package graph

import (
	"errors"
	"testing"

	"github.com/rkoval/flume/pkg/models"
)

func step(id string, deps ...string) *models.Step {
	return &models.Step{ID: id, Role: models.RoleBuilder, Instruction: id, DependsOn: deps}
}

func TestBuildRejectsCycle(t *testing.T) {
	g := New()
	err := g.Build([]*models.Step{
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestBuildRejectsSelfDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Step{step("a", "a")})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for self-dependency, got %v", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Step{step("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	g := New()
	err := g.Build([]*models.Step{step("a"), step("a")})
	if err == nil {
		t.Fatal("expected error for duplicate step id")
	}
}

func TestTopologicalSortRespectsDependencies(t *testing.T) {
	g := New()
	steps := []*models.Step{
		step("research"),
		step("build", "research"),
		step("test", "build"),
		step("docs", "build"),
		step("review", "test", "docs"),
	}
	if err := g.Build(steps); err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if len(order) != len(steps) {
		t.Fatalf("expected %d steps in order, got %d", len(steps), len(order))
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if pos[dep] >= pos[s.ID] {
				t.Errorf("dependency %s sorted after %s", dep, s.ID)
			}
		}
	}
}

func TestReadyProgressesWithCompletions(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Step{
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected [a] ready, got %v", ready)
	}

	g.MarkCompleted("a")
	ready = g.Ready()
	if len(ready) != 2 || ready[0] != "b" || ready[1] != "c" {
		t.Fatalf("expected [b c] ready in declared order, got %v", ready)
	}

	g.MarkCompleted("b")
	g.MarkCompleted("c")
	ready = g.Ready()
	if len(ready) != 1 || ready[0] != "d" {
		t.Fatalf("expected [d] ready, got %v", ready)
	}

	g.MarkCompleted("d")
	if !g.Done() {
		t.Fatal("expected graph done after all completions")
	}
}

func TestOptionalFailureUnblocksDependents(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Step{
		step("research"),
		step("build", "research"),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	g.MarkFailed("research", true)
	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "build" {
		t.Fatalf("expected [build] ready after optional failure, got %v", ready)
	}
	if blocked := g.Blocked(); len(blocked) != 0 {
		t.Fatalf("expected nothing blocked, got %v", blocked)
	}
}

func TestRequiredFailureBlocksDependents(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Step{
		step("build"),
		step("test", "build"),
		step("review", "test"),
		step("independent"),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	g.MarkFailed("build", false)

	blocked := g.Blocked()
	if len(blocked) != 1 || blocked[0] != "test" {
		t.Fatalf("expected [test] blocked, got %v", blocked)
	}

	// Skipping the blocked step cascades to its dependents.
	g.MarkSkipped("test")
	blocked = g.Blocked()
	if len(blocked) != 1 || blocked[0] != "review" {
		t.Fatalf("expected [review] blocked after skip, got %v", blocked)
	}
	g.MarkSkipped("review")

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "independent" {
		t.Fatalf("expected [independent] still ready, got %v", ready)
	}
}
