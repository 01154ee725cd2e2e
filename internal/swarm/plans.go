package swarm

import (
	"time"

	"github.com/highera/swarm/internal/agent"
)

// Plan bundles the limits attached to a subscription tier.
type Plan struct {
	Name                 string
	MaxConcurrentSprites int
	EnabledAgents        []agent.Type
	SpriteIdleTimeout    time.Duration
	MonthlyTokenBudget   int64
}

// StarterPlan is the entry tier: a small crew with short-lived sprites.
func StarterPlan() Plan {
	return Plan{
		Name:                 "starter",
		MaxConcurrentSprites: 2,
		EnabledAgents:        []agent.Type{agent.Director, agent.Copywriter, agent.Editor},
		SpriteIdleTimeout:    60 * time.Second,
		MonthlyTokenBudget:   1_000_000,
	}
}

// GrowthPlan enables the full crew.
func GrowthPlan() Plan {
	return Plan{
		Name:                 "growth",
		MaxConcurrentSprites: 4,
		EnabledAgents:        agent.All(),
		SpriteIdleTimeout:    300 * time.Second,
		MonthlyTokenBudget:   10_000_000,
	}
}

// EnterprisePlan allows long-lived sprites and a large budget.
func EnterprisePlan() Plan {
	return Plan{
		Name:                 "enterprise",
		MaxConcurrentSprites: 10,
		EnabledAgents:        agent.All(),
		SpriteIdleTimeout:    3600 * time.Second,
		MonthlyTokenBudget:   100_000_000,
	}
}

// PlanByName resolves a plan name. Unknown names fall back to starter.
func PlanByName(name string) Plan {
	switch name {
	case "growth":
		return GrowthPlan()
	case "enterprise":
		return EnterprisePlan()
	default:
		return StarterPlan()
	}
}

// AgentEnabled reports whether the plan allows the given agent type.
func (p Plan) AgentEnabled(t agent.Type) bool {
	for _, enabled := range p.EnabledAgents {
		if enabled == t {
			return true
		}
	}
	return false
}
