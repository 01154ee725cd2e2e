package sprite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/highera/swarm/internal/state"
)

func TestBuildTaskPromptSections(t *testing.T) {
	brand := &state.BrandContext{
		Voice:    "bold",
		Tone:     "direct",
		Audience: "startup founders",
		Keywords: []string{"growth", "velocity"},
		Avoid:    []string{"synergy"},
	}
	prompt := buildTaskPrompt("Write a headline", "Launch brief", map[string]string{
		"channel": "email",
		"angle":   "urgency",
	}, brand)

	assert.Contains(t, prompt, "## Task\n\nWrite a headline")
	assert.Contains(t, prompt, "## Input\n\nLaunch brief")
	assert.Contains(t, prompt, "## Context")
	assert.Contains(t, prompt, "- angle: urgency")
	assert.Contains(t, prompt, "- channel: email")
	assert.Contains(t, prompt, "## Brand")
	assert.Contains(t, prompt, "- Voice: bold")
	assert.Contains(t, prompt, "- Keywords: growth, velocity")
	assert.Contains(t, prompt, "- Avoid: synergy")

	// Context keys come out sorted.
	assert.Less(t, strings.Index(prompt, "angle"), strings.Index(prompt, "channel"))
}

func TestBuildTaskPromptMinimal(t *testing.T) {
	prompt := buildTaskPrompt("Do the thing", "", nil, nil)
	assert.Equal(t, "## Task\n\nDo the thing", prompt)
}

func TestBuildTaskPromptTruncatesGuidelines(t *testing.T) {
	brand := &state.BrandContext{Guidelines: strings.Repeat("g", 2000)}
	prompt := buildTaskPrompt("task", "", nil, brand)

	assert.Contains(t, prompt, "Guidelines:")
	assert.NotContains(t, prompt, strings.Repeat("g", guidelinesPreview+1))
	assert.Contains(t, prompt, strings.Repeat("g", guidelinesPreview))
}
