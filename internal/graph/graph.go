// Package graph provides the dependency graph used to schedule workflow steps.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rkoval/flume/pkg/models"
)

// ErrCycle indicates a circular dependency was found among workflow steps.
var ErrCycle = errors.New("workflow dependency cycle detected")

// Graph is a directed acyclic graph of step dependencies.
// Steps are nodes, and edges represent "blocked by" relationships.
// Terminal bookkeeping is index-based so the step objects themselves
// never need back-references.
type Graph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.Step
	// order preserves the declared step order for deterministic ready sets.
	order []string
	// edges maps step ID to the IDs of steps it depends on.
	edges map[string][]string
	// satisfied tracks steps whose terminal state unblocks dependents:
	// completed steps and failed-but-optional steps.
	satisfied map[string]bool
	// terminal tracks every step that reached any terminal state.
	terminal map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*models.Step),
		edges:     make(map[string][]string),
		satisfied: make(map[string]bool),
		terminal:  make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a workflow's steps.
// Returns an error if a dependency references an unknown step or
// ErrCycle if the dependency graph contains a cycle.
func (g *Graph) Build(steps []*models.Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, step := range steps {
		if _, dup := g.nodes[step.ID]; dup {
			return fmt.Errorf("duplicate step id %s", step.ID)
		}
		g.nodes[step.ID] = step
		g.order = append(g.order, step.ID)
		g.edges[step.ID] = nil
	}

	for _, step := range steps {
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycle
	}

	g.debugLog("[graph] built with %d steps", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked detects back edges with three-color depth-first search.
// Caller must hold g.mu.
func (g *Graph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns step IDs with every dependency before its dependents.
// Returns ErrCycle if the graph is cyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycle
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}

	return result, nil
}

// Ready returns, in declared order, the IDs of steps that have not reached
// a terminal state and whose dependencies have all been satisfied
// (completed, or failed while marked optional).
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.terminal[id] {
			continue
		}
		blocked := false
		for _, depID := range g.edges[id] {
			if !g.satisfied[depID] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkCompleted records that a step finished successfully, unblocking
// its dependents.
func (g *Graph) MarkCompleted(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal[id] = true
	g.satisfied[id] = true
	g.debugLog("[graph] step %s completed", id)
}

// MarkFailed records that a step failed. If the step was optional its
// dependents are still unblocked; otherwise they stay blocked and the
// executor skips them.
func (g *Graph) MarkFailed(id string, optional bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal[id] = true
	if optional {
		g.satisfied[id] = true
	}
	g.debugLog("[graph] step %s failed (optional=%v)", id, optional)
}

// MarkSkipped records that a step will never run.
func (g *Graph) MarkSkipped(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal[id] = true
	g.debugLog("[graph] step %s skipped", id)
}

// Done returns true once every step has reached a terminal state.
func (g *Graph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.terminal) == len(g.nodes)
}

// Blocked returns, in declared order, non-terminal steps that can never
// become ready because a dependency reached an unsatisfying terminal state.
func (g *Graph) Blocked() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var blocked []string
	for _, id := range g.order {
		if g.terminal[id] {
			continue
		}
		for _, depID := range g.edges[id] {
			if g.terminal[depID] && !g.satisfied[depID] {
				blocked = append(blocked, id)
				break
			}
		}
	}
	return blocked
}

// Step returns the step for a given ID, or nil if not found.
func (g *Graph) Step(id string) *models.Step {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of steps in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of steps the given step depends on,
// in declared dependency order.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Dependents returns the IDs of steps that depend on the given step.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, other := range g.order {
		for _, depID := range g.edges[other] {
			if depID == id {
				dependents = append(dependents, other)
				break
			}
		}
	}
	return dependents
}
