// Package contextual composes ranked memories and a matched pattern into
// a bounded context block for a downstream prompt. Pure formatting, no
// retrieval and no writes.
package contextual

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/memory"
	"github.com/engramd/engramd/pkg/pattern"
)

// Kind selects the template the context block is rendered with.
type Kind string

const (
	KindDefault        Kind = "default"
	KindCode           Kind = "code"
	KindDocumentation  Kind = "documentation"
	KindConversational Kind = "conversational"
)

// minPerMemoryChars is the floor below which the per-memory budget split
// stops shrinking; a fragment shorter than this is useless.
const minPerMemoryChars = 100

// headers maps each kind to the line opening its context block.
var headers = map[Kind]string{
	KindDefault:        "=== RELEVANT MEMORIES ===",
	KindCode:           "=== RELEVANT MEMORIES (apply to the code below) ===",
	KindDocumentation:  "=== BACKGROUND FOR THIS DOCUMENT ===",
	KindConversational: "Things to keep in mind from earlier conversations:",
}

// ParseKind maps a caller-supplied string onto a Kind, defaulting to
// KindDefault for anything unknown or empty.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindCode, KindDocumentation, KindConversational:
		return Kind(s)
	default:
		return KindDefault
	}
}

// Injector renders context blocks under a character budget.
type Injector struct {
	totalBudget     int
	perMemoryBudget int
}

// NewInjector creates an injector with the configured budgets. A zero
// per-memory budget means the total is split evenly across memories.
func NewInjector(cfg config.ContextConfig) *Injector {
	total := cfg.Budget
	if total <= 0 {
		total = 2000
	}
	return &Injector{totalBudget: total, perMemoryBudget: cfg.PerMemoryBudget}
}

// Inject prepends a context block built from memories and the matched
// pattern to prompt. With no memories and no applicable pattern the
// prompt passes through unchanged. Pattern guidance is included only for
// patterns cleared for auto-apply.
func (in *Injector) Inject(prompt string, memories []*memory.Memory, p *pattern.Pattern, kind Kind) string {
	applicable := p != nil && p.AutoApply
	if len(memories) == 0 && !applicable {
		return prompt
	}

	var b strings.Builder
	if len(memories) > 0 {
		b.WriteString(headers[ParseKind(string(kind))])
		b.WriteString("\n")

		perMemory := in.perMemoryBudget
		if perMemory <= 0 {
			perMemory = in.totalBudget / len(memories)
			if perMemory < minPerMemoryChars {
				perMemory = minPerMemoryChars
			}
		}

		used := 0
		for i, m := range memories {
			text := truncate(m.Text, perMemory)
			if used+len(text) > in.totalBudget {
				break
			}
			used += len(text)
			fmt.Fprintf(&b, "%d. %s\n", i+1, text)
		}
	}

	if applicable {
		b.WriteString("\nKnown workflow for this kind of request (confidence ")
		fmt.Fprintf(&b, "%.0f%%):\n", p.SuccessRate*100)
		for i, action := range p.ActionSequence {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, action)
		}
	}

	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Walk back to a rune boundary so the cut never emits invalid UTF-8.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
