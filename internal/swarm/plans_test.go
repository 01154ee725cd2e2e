package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/highera/swarm/internal/agent"
)

func TestPlanByName(t *testing.T) {
	starter := PlanByName("starter")
	assert.Equal(t, 2, starter.MaxConcurrentSprites)
	assert.Equal(t, 60*time.Second, starter.SpriteIdleTimeout)
	assert.Equal(t, int64(1_000_000), starter.MonthlyTokenBudget)
	assert.ElementsMatch(t, []agent.Type{agent.Director, agent.Copywriter, agent.Editor}, starter.EnabledAgents)

	growth := PlanByName("growth")
	assert.Equal(t, 4, growth.MaxConcurrentSprites)
	assert.Equal(t, 300*time.Second, growth.SpriteIdleTimeout)
	assert.Equal(t, int64(10_000_000), growth.MonthlyTokenBudget)
	assert.Len(t, growth.EnabledAgents, len(agent.All()))

	enterprise := PlanByName("enterprise")
	assert.Equal(t, 10, enterprise.MaxConcurrentSprites)
	assert.Equal(t, 3600*time.Second, enterprise.SpriteIdleTimeout)
	assert.Equal(t, int64(100_000_000), enterprise.MonthlyTokenBudget)

	// Unknown plans fall back to starter.
	assert.Equal(t, "starter", PlanByName("bespoke").Name)
}

func TestAgentEnabled(t *testing.T) {
	starter := StarterPlan()
	assert.True(t, starter.AgentEnabled(agent.Copywriter))
	assert.False(t, starter.AgentEnabled(agent.Analyst))
}
