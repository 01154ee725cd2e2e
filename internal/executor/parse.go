package executor

import (
	"regexp"
	"strings"

	"github.com/highera/swarm/internal/agent"
)

// Agents request routing by embedding fenced blocks in their output:
//
//	```handoff
//	TO: editor
//	CONTEXT: summary of what the next agent needs
//	```
//
//	```review
//	- first question
//	- second question
//	```
//
// Blocks are recognized case-insensitively and removed from the output
// whether or not they parse cleanly.
var (
	handoffBlockRe = regexp.MustCompile("(?is)```handoff\\s*\\n(.*?)```")
	reviewBlockRe  = regexp.MustCompile("(?is)```review\\s*\\n(.*?)```")
	handoffToRe    = regexp.MustCompile(`(?i)TO:\s*(\w+)`)
	// CONTEXT: runs until the next KEY: line or the end of the block.
	handoffContextRe = regexp.MustCompile(`(?is)CONTEXT:\s*(.*?)(?:\n[A-Z]+:|$)`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
)

type parsed struct {
	output string

	handoffRequested bool
	handoffTo        agent.Type
	handoffContext   map[string]string

	reviewRequested bool
	reviewQuestions []string
}

// parseOutput extracts handoff and review requests from raw model output
// and returns the output with the request blocks stripped.
func parseOutput(raw string) parsed {
	p := parsed{}

	if m := handoffBlockRe.FindStringSubmatch(raw); m != nil {
		p.handoffRequested, p.handoffTo, p.handoffContext = parseHandoffBlock(m[1])
	}
	if m := reviewBlockRe.FindStringSubmatch(raw); m != nil {
		p.reviewQuestions = parseReviewBlock(m[1])
		p.reviewRequested = len(p.reviewQuestions) > 0
	}

	clean := handoffBlockRe.ReplaceAllString(raw, "")
	clean = reviewBlockRe.ReplaceAllString(clean, "")
	clean = blankRunRe.ReplaceAllString(clean, "\n\n")
	p.output = strings.TrimSpace(clean)
	return p
}

func parseHandoffBlock(block string) (bool, agent.Type, map[string]string) {
	toMatch := handoffToRe.FindStringSubmatch(block)
	if toMatch == nil {
		return false, "", nil
	}
	to, err := agent.Parse(strings.ToLower(toMatch[1]))
	if err != nil {
		return false, "", nil
	}

	ctx := map[string]string{}
	if m := handoffContextRe.FindStringSubmatch(block); m != nil {
		ctx["notes"] = strings.TrimSpace(m[1])
	}
	return true, to, ctx
}

func parseReviewBlock(block string) []string {
	var questions []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
			q := strings.TrimSpace(line[1:])
			if q != "" {
				questions = append(questions, q)
			}
		}
	}
	return questions
}
