// Package agent defines the specialized roles a sprite can take on. Each
// role determines the persona a sprite loads and the kind of work the
// coordinator routes to it.
package agent

import "fmt"

// Type is an enumerated agent role.
type Type string

const (
	// Director orchestrates multi-agent work and is the default route.
	Director Type = "director"
	// Strategist handles positioning, competitor and audience work.
	Strategist Type = "strategist"
	// Copywriter produces copy, headlines and emails.
	Copywriter Type = "copywriter"
	// Editor reviews, edits and proofreads.
	Editor Type = "editor"
	// Optimizer handles conversion and funnel-friction work.
	Optimizer Type = "optimizer"
	// Analyst handles measurement and data analysis.
	Analyst Type = "analyst"
)

// All returns every known agent type in stable order.
func All() []Type {
	return []Type{Director, Strategist, Copywriter, Editor, Optimizer, Analyst}
}

// Valid reports whether t names a known agent type.
func (t Type) Valid() bool {
	switch t {
	case Director, Strategist, Copywriter, Editor, Optimizer, Analyst:
		return true
	}
	return false
}

// String returns the role name.
func (t Type) String() string {
	return string(t)
}

// Parse converts a role name to a Type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type: %q", s)
	}
	return t, nil
}
