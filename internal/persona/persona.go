// Package persona loads agent personas from markdown files and turns them
// into system prompts. A persona file describes one agent role: a title
// heading naming the agent, a personality section, an expertise section,
// and handoff guidance for working with the other roles.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/highera/swarm/internal/agent"
)

// Persona is an agent role loaded from markdown.
type Persona struct {
	AgentType    agent.Type
	Name         string
	SystemPrompt string
	Expertise    []string
	Traits       []string
	// HandoffTriggers maps a target agent to the guidance for handing
	// work to it.
	HandoffTriggers map[agent.Type]string
}

// Section headings recognized in persona files.
const (
	personalityHeading = "Your Personality"
	expertiseHeading   = "Your Expertise"
	handoffHeading     = "Working With Other Agents"
)

// maxTriggerLen caps stored handoff guidance.
const maxTriggerLen = 200

// The parser configuration never changes and the goldmark Parser is safe
// to share; per-call state lives in the reader.
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New()
	})
	return parserInstance
}

// Load reads and parses the persona file for agentType from dir. The file
// is named after the agent type, e.g. "copywriter.md".
func Load(dir string, agentType agent.Type) (*Persona, error) {
	if !agentType.Valid() {
		return nil, fmt.Errorf("unknown agent type %q", string(agentType))
	}
	path := filepath.Join(dir, string(agentType)+".md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona for %s: %w", agentType, err)
	}
	return Parse(agentType, content)
}

// Parse builds a Persona from markdown content.
func Parse(agentType agent.Type, content []byte) (*Persona, error) {
	doc := parser().Parser().Parse(text.NewReader(content))

	p := &Persona{
		AgentType:       agentType,
		Name:            titleCase(string(agentType)),
		HandoffTriggers: map[agent.Type]string{},
	}

	sections := splitSections(doc, content)

	if name := extractName(doc, content); name != "" {
		p.Name = name
	}
	if nodes, ok := sections[personalityHeading]; ok {
		p.Traits = extractTraits(nodes, content)
	}
	if nodes, ok := sections[expertiseHeading]; ok {
		p.Expertise = extractCodeSpans(nodes, content)
	}
	if nodes, ok := sections[handoffHeading]; ok {
		p.HandoffTriggers = extractHandoffTriggers(nodes, content)
	}

	p.SystemPrompt = buildSystemPrompt(p.Name, string(content))
	return p, nil
}

// extractName returns the agent name from the first level-1 heading,
// which conventionally reads "<Name> Agent".
func extractName(doc ast.Node, source []byte) string {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			continue
		}
		title := nodeText(h, source)
		if name, found := strings.CutSuffix(title, " Agent"); found {
			return strings.TrimSpace(name)
		}
		return title
	}
	return ""
}

// splitSections groups the document's top-level nodes by the level-2
// heading they fall under.
func splitSections(doc ast.Node, source []byte) map[string][]ast.Node {
	sections := map[string][]ast.Node{}
	var current string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 2 {
			current = nodeText(h, source)
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], n)
		}
	}
	return sections
}

// extractTraits pulls trait names from list items. Items that lead with a
// bold phrase like "**Skeptical.** Questions every claim" yield the bold
// phrase; plain items yield their full text.
func extractTraits(nodes []ast.Node, source []byte) []string {
	var traits []string
	for _, n := range nodes {
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			block := item.FirstChild()
			if block == nil {
				continue
			}
			if em, ok := block.FirstChild().(*ast.Emphasis); ok && em.Level >= 2 {
				traits = append(traits, strings.TrimSuffix(nodeText(em, source), "."))
				continue
			}
			if t := nodeText(block, source); t != "" {
				traits = append(traits, t)
			}
		}
	}
	return traits
}

// extractCodeSpans collects inline code items, the convention persona
// files use to list skills.
func extractCodeSpans(nodes []ast.Node, source []byte) []string {
	var items []string
	for _, n := range nodes {
		ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
			if entering && node.Kind() == ast.KindCodeSpan {
				items = append(items, nodeText(node, source))
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		})
	}
	return items
}

// extractHandoffTriggers reads "To <agent>" subsections. A subsection
// counts as a trigger only when its text describes what the handing-off
// agent provides.
func extractHandoffTriggers(nodes []ast.Node, source []byte) map[agent.Type]string {
	triggers := map[agent.Type]string{}

	var target agent.Type
	var desc strings.Builder
	flush := func() {
		if target == "" {
			return
		}
		text := strings.TrimSpace(desc.String())
		if strings.Contains(strings.ToLower(text), "provide") {
			if len(text) > maxTriggerLen {
				text = text[:maxTriggerLen]
			}
			triggers[target] = text
		}
		target = ""
		desc.Reset()
	}

	for _, n := range nodes {
		if h, ok := n.(*ast.Heading); ok && h.Level >= 3 {
			flush()
			title := nodeText(h, source)
			if rest, found := strings.CutPrefix(title, "To "); found {
				if t, err := agent.Parse(strings.ToLower(strings.TrimSpace(rest))); err == nil {
					target = t
				}
			}
			continue
		}
		if target != "" {
			if desc.Len() > 0 {
				desc.WriteString("\n")
			}
			desc.WriteString(nodeText(n, source))
		}
	}
	flush()
	return triggers
}

// nodeText collects the plain text under a node.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

var titleRe = regexp.MustCompile(`(?m)\A#\s+.+\n+`)

// buildSystemPrompt assembles the full system prompt: an identity line,
// the persona content with its title stripped, and the swarm behavior
// rules including the handoff request grammar.
func buildSystemPrompt(name, content string) string {
	body := titleRe.ReplaceAllString(content, "")

	var sb strings.Builder
	sb.WriteString("You are the " + name + ", a specialized agent in a marketing agency swarm.\n")
	sb.WriteString("\n# Your Role\n\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\n# Swarm Behavior\n\n")
	sb.WriteString("You are part of a multi-agent swarm. Key behaviors:\n\n")
	sb.WriteString("1. **Stay in role.** Only do work within your expertise.\n")
	sb.WriteString("2. **Request handoffs.** When work needs another agent, request a handoff.\n")
	sb.WriteString("3. **Be concise.** Other agents and humans will read your output.\n")
	sb.WriteString("4. **Maintain context.** Reference the brand voice and project context.\n")
	sb.WriteString("5. **Signal completion.** Clearly indicate when your part is done.\n")
	sb.WriteString("\nWhen you need another agent, format your handoff request as:\n")
	sb.WriteString("```handoff\n")
	sb.WriteString("TO: [agent_type]\n")
	sb.WriteString("CONTEXT: [what they need to know]\n")
	sb.WriteString("```\n")
	sb.WriteString("\nWhen you need your work reviewed, format your review request as:\n")
	sb.WriteString("```review\n")
	sb.WriteString("- [question for the reviewer]\n")
	sb.WriteString("```\n")
	return sb.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
