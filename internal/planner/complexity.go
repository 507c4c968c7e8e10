package planner

import (
	"strings"

	"github.com/rkoval/flume/pkg/models"
)

// complexKeywords flag descriptions that span multiple files or subsystems.
// Matching any of them classifies the task as complex.
var complexKeywords = []string{
	"refactor",
	"redesign",
	"rewrite",
	"migrate",
	"migration",
	"architecture",
	"across",
	"multiple files",
	"multi-file",
	"entire",
	"all modules",
	"integrate",
	"integration",
	"concurren",
	"protocol",
	"schema",
	"database",
	"performance",
	"security audit",
}

// complexLengthThreshold is the description length above which a task is
// classified complex even without keyword matches. Long descriptions tend
// to carry multi-part requirements.
const complexLengthThreshold = 240

// EstimateComplexity classifies a task description as simple or complex.
// The classification is a first-class planner output: it decides which
// optional roles appear in the workflow and how verification steps are
// scoped. Ambiguous input defaults to complex so that under-scoping never
// drops verification depth.
func EstimateComplexity(description string) models.Complexity {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		// Nothing to judge; fail safe toward the thorough workflow.
		return models.ComplexityComplex
	}

	for _, kw := range complexKeywords {
		if strings.Contains(desc, kw) {
			return models.ComplexityComplex
		}
	}

	if len(desc) > complexLengthThreshold {
		return models.ComplexityComplex
	}

	return models.ComplexitySimple
}
