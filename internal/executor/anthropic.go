package executor

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/highera/swarm/internal/logging"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = string(anthropic.ModelClaudeSonnet4_5_20250929)
	// DefaultMaxTokens bounds the length of a single completion.
	DefaultMaxTokens = 4096
)

// ClaudeExecutor executes prompts against the Anthropic Messages API.
type ClaudeExecutor struct {
	client       anthropic.Client
	systemPrompt string
	model        anthropic.Model
	maxTokens    int64
	log          *logging.Logger
}

// ClaudeConfig configures a ClaudeExecutor.
type ClaudeConfig struct {
	APIKey       string
	SystemPrompt string
	// Model overrides DefaultModel when set.
	Model string
	// MaxTokens overrides DefaultMaxTokens when positive.
	MaxTokens int64
}

// NewClaudeExecutor creates an executor bound to one system prompt.
func NewClaudeExecutor(cfg ClaudeConfig) (*ClaudeExecutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ClaudeExecutor{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		systemPrompt: cfg.SystemPrompt,
		model:        anthropic.Model(model),
		maxTokens:    maxTokens,
		log:          logging.With("component", "executor"),
	}, nil
}

// Execute sends prompt as a single user message and parses the response.
func (e *ClaudeExecutor) Execute(ctx context.Context, prompt string) (*Result, error) {
	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
		}},
	}
	if e.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: e.systemPrompt}}
	}

	response, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	var raw string
	for _, block := range response.Content {
		if block.Type == "text" {
			raw += block.AsText().Text
		}
	}

	tokens := response.Usage.InputTokens + response.Usage.OutputTokens
	p := parseOutput(raw)

	if p.handoffRequested {
		e.log.Debug("handoff requested in output", "to", string(p.handoffTo))
	}
	if p.reviewRequested {
		e.log.Debug("review requested in output", "questions", len(p.reviewQuestions))
	}

	return &Result{
		Output:           p.output,
		TokensUsed:       tokens,
		Model:            string(e.model),
		HandoffRequested: p.handoffRequested,
		HandoffTo:        p.handoffTo,
		HandoffContext:   p.handoffContext,
		ReviewRequested:  p.reviewRequested,
		ReviewQuestions:  p.reviewQuestions,
	}, nil
}

var _ Executor = (*ClaudeExecutor)(nil)
