package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rkoval/flume/internal/backend"
	"github.com/rkoval/flume/internal/graph"
	"github.com/rkoval/flume/pkg/models"
)

const decomposePrompt = `Break the following task into discrete steps for specialized agents.

Task: %s

Respond with ONLY a JSON array. Each element:
  {"id": "short-slug", "role": "researcher|planner|builder|tester|reviewer|documenter", "instruction": "...", "depends_on": ["id", ...], "optional": false}

Rules:
- Every depends_on entry must reference an earlier element's id.
- Steps without a dependency between them may run concurrently.
- Mark steps whose failure should not abort the workflow as optional.`

const decomposeRetryPrompt = decomposePrompt + `

Your previous response was not a parseable JSON array. Respond with the raw JSON array only: no prose, no markdown fences.`

// plannedStep is the wire shape of one model-proposed step.
type plannedStep struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Instruction string   `json:"instruction"`
	DependsOn   []string `json:"depends_on"`
	Optional    bool     `json:"optional"`
}

// planCustom plans a custom task. Without a backend it degrades to a
// single custom step; with one, the planner role proposes a step graph.
func (p *Planner) planCustom(ctx context.Context, desc string, complexity models.Complexity, override models.ExecutionMode) (*models.Workflow, error) {
	if p.backend == nil {
		step := &models.Step{
			ID:          uuid.New().String(),
			Role:        models.RoleCustom,
			Instruction: desc,
			Constraints: models.RoleCustom.DefaultConstraints(),
			Status:      models.StepStatusPending,
		}
		mode, err := resolveMode(override, []*models.Step{step})
		if err != nil {
			return nil, err
		}
		return &models.Workflow{Steps: []*models.Step{step}, Mode: mode, Complexity: complexity}, nil
	}

	steps, err := p.decompose(ctx, desc, decomposePrompt)
	if err != nil {
		log.Printf("[planner] decomposition failed, retrying with strict format: %v", err)
		steps, err = p.decompose(ctx, desc, decomposeRetryPrompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPlanningBackend, err)
		}
	}

	mode, err := resolveMode(override, steps)
	if err != nil {
		return nil, err
	}
	wf := &models.Workflow{Steps: steps, Mode: mode, Complexity: complexity}
	if err := validate(wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanningBackend, err)
	}
	return wf, nil
}

// decompose runs one planning call and converts the proposed steps,
// re-keying the model's slugs to real step IDs.
func (p *Planner) decompose(ctx context.Context, desc, prompt string) ([]*models.Step, error) {
	res, err := p.backend.Execute(ctx, backend.Request{
		Role:        models.RolePlanner,
		Instruction: fmt.Sprintf(prompt, desc),
	})
	if err != nil {
		return nil, err
	}
	if p.planUsage != nil {
		p.planUsage(res.Usage)
	}

	proposed, err := parsePlannedSteps(res.Output)
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]string, len(proposed))
	for _, ps := range proposed {
		if _, dup := idMap[ps.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", ps.ID)
		}
		idMap[ps.ID] = uuid.New().String()
	}

	steps := make([]*models.Step, 0, len(proposed))
	for _, ps := range proposed {
		role := models.Role(ps.Role)
		if !role.Valid() {
			role = models.RoleCustom
		}
		if strings.TrimSpace(ps.Instruction) == "" {
			return nil, fmt.Errorf("step %q has empty instruction", ps.ID)
		}
		deps := make([]string, 0, len(ps.DependsOn))
		for _, d := range ps.DependsOn {
			id, ok := idMap[d]
			if !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", ps.ID, d)
			}
			deps = append(deps, id)
		}
		steps = append(steps, &models.Step{
			ID:          idMap[ps.ID],
			Role:        role,
			Instruction: ps.Instruction,
			Constraints: role.DefaultConstraints(),
			DependsOn:   deps,
			Optional:    ps.Optional,
			Status:      models.StepStatusPending,
		})
	}

	g := graph.New()
	if err := g.Build(steps); err != nil {
		return nil, err
	}
	assignGroups(steps, g)
	return steps, nil
}

// parsePlannedSteps extracts a JSON array from model output, tolerating
// surrounding prose and markdown fences.
func parsePlannedSteps(output string) ([]plannedStep, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in planning output")
	}
	var steps []plannedStep
	if err := json.Unmarshal([]byte(output[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("parse planning output: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("planning output contained no steps")
	}
	return steps, nil
}

// assignGroups sets each step's group to its dependency depth, so steps
// that can run concurrently share a group number.
func assignGroups(steps []*models.Step, g *graph.Graph) {
	depth := make(map[string]int, len(steps))
	order, err := g.TopologicalSort()
	if err != nil {
		return
	}
	byID := make(map[string]*models.Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, id := range order {
		d := 0
		for _, dep := range byID[id].DependsOn {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		byID[id].Group = d
	}
}
