package models

// Role is the closed category describing a step's intent.
type Role string

const (
	// RoleResearcher investigates the codebase before changes are made.
	RoleResearcher Role = "researcher"
	// RolePlanner produces a step graph for a task (planning sub-calls only).
	RolePlanner Role = "planner"
	// RoleBuilder implements the requested change.
	RoleBuilder Role = "builder"
	// RoleTester verifies a change with tests or checks.
	RoleTester Role = "tester"
	// RoleReviewer reviews completed work for defects.
	RoleReviewer Role = "reviewer"
	// RoleDocumenter writes or updates documentation.
	RoleDocumenter Role = "documenter"
	// RoleCustom carries a caller-supplied instruction with no default scoping.
	RoleCustom Role = "custom"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RolePlanner, RoleBuilder, RoleTester,
		RoleReviewer, RoleDocumenter, RoleCustom:
		return true
	default:
		return false
	}
}

// roleConstraints maps each role to its default constraints.
// Roles not present in the map carry no default constraints.
var roleConstraints = map[Role][]string{
	RoleResearcher: {"read-only investigation", "report findings as bullet points"},
	RoleBuilder:    {"modify only files required by the instruction"},
	RoleTester:     {"do not change production code"},
	RoleReviewer:   {"report concerns, do not fix them"},
	RoleDocumenter: {"documentation files only"},
}

// DefaultConstraints returns the default constraints for the role.
// The returned slice is a copy and safe to append to.
func (r Role) DefaultConstraints() []string {
	defaults, ok := roleConstraints[r]
	if !ok {
		return nil
	}
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}
