// Package planner decomposes a free-form task into an ordered list of
// atomic step descriptions using the LLM client. No classification happens
// here; the workflow engine classifies each returned step.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/llm"
)

// ErrEmptyPlan means the LLM produced no usable steps. Fatal to the
// workflow, like any planning-time LLM failure.
var ErrEmptyPlan = errors.New("empty plan")

const systemPrompt = `You are a task planning assistant. Decompose the user's task into an ordered list of atomic steps.

Rules:
- Emit at most %d steps, in execution order.
- One step per line, each a single declarative sentence.
- Number the steps ("1. ..."). No headings, no commentary.`

// Planner turns an initial task into a validated plan.
type Planner struct {
	client   llm.Client
	maxSteps int
	logger   *slog.Logger
}

// New creates a Planner.
func New(client llm.Client, cfg *config.PlannerConfig) *Planner {
	return &Planner{
		client:   client,
		maxSteps: cfg.MaxSteps,
		logger:   slog.With("component", "planner"),
	}
}

// Decompose produces an ordered plan of 1..max_steps step descriptions.
// hints, when present, are appended to the prompt as planning guidance.
func (p *Planner) Decompose(ctx context.Context, initialTask string, hints map[string]string) ([]string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, p.maxSteps)},
		{Role: llm.RoleUser, Content: buildUserPrompt(initialTask, hints)},
	}

	completion, err := p.client.Complete(ctx, messages, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("plan decomposition: %w", err)
	}

	steps := parsePlan(completion.Text)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps parsed from response", ErrEmptyPlan)
	}
	if len(steps) > p.maxSteps {
		p.logger.Warn("Plan exceeds step limit, truncating",
			"steps", len(steps), "max_steps", p.maxSteps)
		steps = steps[:p.maxSteps]
	}

	p.logger.Info("Plan ready", "steps", len(steps))
	return steps, nil
}

func buildUserPrompt(initialTask string, hints map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(initialTask)
	if len(hints) > 0 {
		sb.WriteString("\n\nPlanning hints:\n")
		keys := make([]string, 0, len(hints))
		for k := range hints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, hints[k])
		}
	}
	return sb.String()
}
