package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskweave/taskweave/pkg/config"
)

// ContextAccumulator builds the rolling context string passed to generic
// steps: one summary line per successful step, capped at a character budget.
// Overflow truncates from the head, so the freshest outputs survive.
type ContextAccumulator struct {
	budget  int
	entries []string
}

// NewContextAccumulator creates an accumulator with the configured budget.
func NewContextAccumulator(cfg *config.ContextConfig) *ContextAccumulator {
	return &ContextAccumulator{budget: cfg.CharBudget}
}

// Add records a successful step's output. Structured tool outputs get a
// deterministic stringification.
func (a *ContextAccumulator) Add(stepIndex int, description string, output any) {
	entry := fmt.Sprintf("Step %d (%s): %s", stepIndex, description, Stringify(output))
	a.entries = append(a.entries, entry)
}

// Context returns the accumulated summary, head-truncated to the budget.
func (a *ContextAccumulator) Context() string {
	full := strings.Join(a.entries, "\n")
	if len(full) <= a.budget {
		return full
	}
	return full[len(full)-a.budget:]
}

// Stringify renders a step output deterministically. Strings pass through;
// everything else is JSON-encoded (map keys sorted by encoding/json).
func Stringify(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
