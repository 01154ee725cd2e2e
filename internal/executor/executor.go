// Package executor runs agent prompts against a language model and parses
// the structured handoff and review requests an agent may embed in its
// output. The blocks are stripped from the returned output so downstream
// consumers only see the deliverable text.
package executor

import (
	"context"

	"github.com/highera/swarm/internal/agent"
)

// Result is the outcome of one executed prompt.
type Result struct {
	Output     string
	TokensUsed int64
	Model      string

	HandoffRequested bool
	HandoffTo        agent.Type
	HandoffContext   map[string]string

	ReviewRequested bool
	ReviewQuestions []string
}

// Executor executes a single prompt and returns the parsed result.
type Executor interface {
	Execute(ctx context.Context, prompt string) (*Result, error)
}
