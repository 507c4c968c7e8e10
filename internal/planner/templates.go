package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rkoval/flume/pkg/models"
)

// stepTemplate declares one step of a workflow template.
type stepTemplate struct {
	// Role assigned to the step.
	Role models.Role `yaml:"role"`
	// Instruction is a format string; %s receives the task description.
	Instruction string `yaml:"instruction"`
	// Constraints are scoping annotations added to the role defaults.
	Constraints []string `yaml:"constraints"`
	// Stage groups steps: steps in the same stage have no data dependency
	// on each other and may run concurrently. Stages execute in order.
	Stage int `yaml:"stage"`
	// Optional marks steps whose failure does not fail the task.
	Optional bool `yaml:"optional"`
}

// templateKey selects a template by declared type and complexity.
type templateKey struct {
	Type       models.TaskType
	Complexity models.Complexity
}

// TemplateSet holds the workflow templates the planner selects from.
type TemplateSet struct {
	templates map[templateKey][]stepTemplate
}

// Policy invariants encoded in the built-in templates: the researcher role
// appears only in complex variants; builder and tester are present in every
// template that produces changes; tester scoping tightens with complexity.
func defaultTemplates() *TemplateSet {
	simpleTester := []string{"basic validation only"}
	complexTester := []string{"exhaustive edge-case coverage"}

	return &TemplateSet{templates: map[templateKey][]stepTemplate{
		{models.TypeFeature, models.ComplexitySimple}: {
			{Role: models.RoleBuilder, Instruction: "Implement the following feature: %s", Stage: 0},
			{Role: models.RoleTester, Instruction: "Verify the implementation of: %s", Constraints: simpleTester, Stage: 1},
			{Role: models.RoleReviewer, Instruction: "Review the completed work for: %s", Stage: 2},
		},
		{models.TypeFeature, models.ComplexityComplex}: {
			{Role: models.RoleResearcher, Instruction: "Investigate the codebase areas relevant to: %s", Stage: 0, Optional: true},
			{Role: models.RoleBuilder, Instruction: "Implement the following feature: %s", Stage: 1},
			{Role: models.RoleTester, Instruction: "Verify the implementation of: %s", Constraints: complexTester, Stage: 2},
			{Role: models.RoleDocumenter, Instruction: "Document the changes made for: %s", Stage: 2, Optional: true},
			{Role: models.RoleReviewer, Instruction: "Review the completed work for: %s", Stage: 3},
		},
		{models.TypeBugFix, models.ComplexitySimple}: {
			{Role: models.RoleBuilder, Instruction: "Fix the following bug: %s", Stage: 0},
			{Role: models.RoleTester, Instruction: "Verify the fix for: %s", Constraints: simpleTester, Stage: 1},
		},
		{models.TypeBugFix, models.ComplexityComplex}: {
			{Role: models.RoleResearcher, Instruction: "Investigate the root cause of: %s", Stage: 0, Optional: true},
			{Role: models.RoleBuilder, Instruction: "Fix the following bug: %s", Stage: 1},
			{Role: models.RoleTester, Instruction: "Verify the fix for: %s", Constraints: complexTester, Stage: 2},
			{Role: models.RoleReviewer, Instruction: "Review the fix for regressions: %s", Stage: 3},
		},
		{models.TypeReview, models.ComplexitySimple}: {
			{Role: models.RoleReviewer, Instruction: "Review the following: %s", Stage: 0},
		},
		{models.TypeReview, models.ComplexityComplex}: {
			{Role: models.RoleResearcher, Instruction: "Gather context needed to review: %s", Stage: 0, Optional: true},
			{Role: models.RoleReviewer, Instruction: "Review the following: %s", Stage: 1},
		},
	}}
}

// genericTemplate is the build→verify→review fallback used when the
// declared type is auto and no keyword matches.
func genericTemplate(complexity models.Complexity) []stepTemplate {
	tester := []string{"basic validation only"}
	if complexity == models.ComplexityComplex {
		tester = []string{"exhaustive edge-case coverage"}
	}
	steps := []stepTemplate{
		{Role: models.RoleBuilder, Instruction: "Complete the following task: %s", Stage: 0},
		{Role: models.RoleTester, Instruction: "Verify the work done for: %s", Constraints: tester, Stage: 1},
		{Role: models.RoleReviewer, Instruction: "Review the completed work for: %s", Stage: 2},
	}
	if complexity == models.ComplexityComplex {
		steps = append([]stepTemplate{
			{Role: models.RoleResearcher, Instruction: "Investigate the codebase areas relevant to: %s", Stage: 0, Optional: true},
		}, bump(steps)...)
	}
	return steps
}

// bump shifts every stage up by one to make room for a prepended stage.
func bump(steps []stepTemplate) []stepTemplate {
	out := make([]stepTemplate, len(steps))
	for i, s := range steps {
		s.Stage++
		out[i] = s
	}
	return out
}

// lookup returns the template for the given key, falling back to the
// generic template when none is registered.
func (ts *TemplateSet) lookup(t models.TaskType, c models.Complexity) []stepTemplate {
	if steps, ok := ts.templates[templateKey{t, c}]; ok {
		return steps
	}
	return genericTemplate(c)
}

// templateFile is the YAML shape for user-supplied template overrides.
type templateFile struct {
	Templates []struct {
		Type       models.TaskType   `yaml:"type"`
		Complexity models.Complexity `yaml:"complexity"`
		Steps      []stepTemplate    `yaml:"steps"`
	} `yaml:"templates"`
}

// LoadTemplates reads template overrides from a YAML file and merges them
// over the built-in set. Entries replace the built-in template for their
// (type, complexity) key; keys not present keep the defaults.
func LoadTemplates(path string) (*TemplateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	ts := defaultTemplates()
	for _, entry := range tf.Templates {
		if !entry.Type.Valid() || entry.Type == models.TypeAuto {
			return nil, fmt.Errorf("template references unknown type %q", entry.Type)
		}
		for _, s := range entry.Steps {
			if !s.Role.Valid() {
				return nil, fmt.Errorf("template for %s/%s references unknown role %q",
					entry.Type, entry.Complexity, s.Role)
			}
		}
		ts.templates[templateKey{entry.Type, entry.Complexity}] = entry.Steps
	}
	return ts, nil
}
