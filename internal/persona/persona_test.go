package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highera/swarm/internal/agent"
)

const copywriterMarkdown = `# Copywriter Agent

You write conversion-focused marketing copy.

## Your Personality

- **Punchy.** Short sentences that land.
- **Curious.** Asks about the audience before writing.
- direct and unafraid of strong claims

## Your Expertise

You are skilled at ` + "`headlines`, `email sequences`, and `landing pages`" + `.

## Working With Other Agents

### To Editor

Hand off drafts for polish. You provide the draft copy and the target
audience notes.

### To Strategist

Escalate when positioning is unclear.

### To Analyst

You provide the copy variants to measure.
`

func TestParseCopywriterPersona(t *testing.T) {
	p, err := Parse(agent.Copywriter, []byte(copywriterMarkdown))
	require.NoError(t, err)

	assert.Equal(t, agent.Copywriter, p.AgentType)
	assert.Equal(t, "Copywriter", p.Name)
	assert.Equal(t, []string{"Punchy", "Curious", "direct and unafraid of strong claims"}, p.Traits)
	assert.Equal(t, []string{"headlines", "email sequences", "landing pages"}, p.Expertise)

	// Only subsections describing what the agent provides count as
	// handoff triggers.
	require.Contains(t, p.HandoffTriggers, agent.Editor)
	require.Contains(t, p.HandoffTriggers, agent.Analyst)
	assert.NotContains(t, p.HandoffTriggers, agent.Strategist)
	assert.Contains(t, p.HandoffTriggers[agent.Editor], "You provide the draft copy")
}

func TestParseSystemPrompt(t *testing.T) {
	p, err := Parse(agent.Copywriter, []byte(copywriterMarkdown))
	require.NoError(t, err)

	assert.Contains(t, p.SystemPrompt, "You are the Copywriter, a specialized agent in a marketing agency swarm.")
	assert.Contains(t, p.SystemPrompt, "# Swarm Behavior")
	assert.Contains(t, p.SystemPrompt, "```handoff")
	assert.Contains(t, p.SystemPrompt, "TO: [agent_type]")
	assert.Contains(t, p.SystemPrompt, "```review")
	assert.NotContains(t, p.SystemPrompt, "# Copywriter Agent", "title is stripped")
	assert.Contains(t, p.SystemPrompt, "## Your Personality", "body sections survive")
}

func TestParseMinimalPersona(t *testing.T) {
	p, err := Parse(agent.Director, []byte("Coordinate the team.\n"))
	require.NoError(t, err)

	assert.Equal(t, "Director", p.Name, "name falls back to the agent type")
	assert.Empty(t, p.Traits)
	assert.Empty(t, p.Expertise)
	assert.Empty(t, p.HandoffTriggers)
	assert.Contains(t, p.SystemPrompt, "Coordinate the team.")
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copywriter.md"), []byte(copywriterMarkdown), 0o644))

	p, err := Load(dir, agent.Copywriter)
	require.NoError(t, err)
	assert.Equal(t, "Copywriter", p.Name)

	_, err = Load(dir, agent.Editor)
	assert.Error(t, err, "missing persona file is an error")

	_, err = Load(dir, agent.Type("janitor"))
	assert.Error(t, err)
}
