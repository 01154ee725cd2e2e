package sprite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/highera/swarm/internal/state"
)

const guidelinesPreview = 500

// buildTaskPrompt renders one task into the user message sent to the
// model. The persona carries the system prompt; this covers the task,
// its input, any routed context, and the tenant's brand voice.
func buildTaskPrompt(description, input string, taskContext map[string]string, brand *state.BrandContext) string {
	var b strings.Builder

	b.WriteString("## Task\n\n")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")

	if input != "" {
		b.WriteString("\n## Input\n\n")
		b.WriteString(strings.TrimSpace(input))
		b.WriteString("\n")
	}

	if len(taskContext) > 0 {
		b.WriteString("\n## Context\n\n")
		keys := make([]string, 0, len(taskContext))
		for k := range taskContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, taskContext[k])
		}
	}

	if brand != nil {
		b.WriteString("\n## Brand\n\n")
		writeBrandLine(&b, "Voice", brand.Voice)
		writeBrandLine(&b, "Tone", brand.Tone)
		writeBrandLine(&b, "Audience", brand.Audience)
		if len(brand.Keywords) > 0 {
			writeBrandLine(&b, "Keywords", strings.Join(brand.Keywords, ", "))
		}
		if len(brand.Avoid) > 0 {
			writeBrandLine(&b, "Avoid", strings.Join(brand.Avoid, ", "))
		}
		if g := strings.TrimSpace(brand.Guidelines); g != "" {
			if len(g) > guidelinesPreview {
				g = g[:guidelinesPreview]
			}
			fmt.Fprintf(&b, "\nGuidelines:\n%s\n", g)
		}
	}

	return strings.TrimSpace(b.String())
}

func writeBrandLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
