package swarm

import (
	"strings"

	"github.com/highera/swarm/internal/agent"
)

// inferenceRules map task description keywords to agent types. Rules are
// checked in order; the first match wins.
var inferenceRules = []struct {
	target   agent.Type
	keywords []string
}{
	{agent.Strategist, []string{"strategy", "position", "competitor", "audience"}},
	{agent.Copywriter, []string{"write", "copy", "headline", "email"}},
	{agent.Editor, []string{"review", "edit", "polish", "proofread"}},
	{agent.Optimizer, []string{"optimize", "cro", "conversion", "friction"}},
	{agent.Analyst, []string{"analyze", "measure", "track", "data"}},
}

// InferAgentType picks the agent for a task from its description. Tasks
// that match no rule go to the director for orchestration.
func InferAgentType(description string) agent.Type {
	description = strings.ToLower(description)
	for _, rule := range inferenceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(description, kw) {
				return rule.target
			}
		}
	}
	return agent.Director
}
