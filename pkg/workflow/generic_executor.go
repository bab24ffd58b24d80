package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/taskweave/taskweave/pkg/llm"
)

const genericSystemPrompt = `You are a capable assistant executing one step of a larger plan. Produce the step's output directly and concisely. Do not narrate what you are doing.`

// GenericExecutor runs steps that have no tool affordance by asking the LLM
// to produce the step's output. The output is an opaque text blob.
type GenericExecutor struct {
	client llm.Client
}

// NewGenericExecutor creates a GenericExecutor.
func NewGenericExecutor(client llm.Client) *GenericExecutor {
	return &GenericExecutor{client: client}
}

// Execute produces the step output. LLM errors map to llm_failed
// (non-fatal at step level).
func (e *GenericExecutor) Execute(ctx context.Context, step Step, accumulated string) StepResult {
	start := time.Now()
	result := StepResult{StepIndex: step.Index, Kind: StepKindGeneric}

	var sb strings.Builder
	sb.WriteString("Step to execute: ")
	sb.WriteString(step.Description)
	if accumulated != "" {
		sb.WriteString("\n\nOutputs of prior steps:\n")
		sb.WriteString(accumulated)
	}

	completion, err := e.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: genericSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, llm.Options{})

	result.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = ErrLLMFailed
		result.ErrorText = err.Error()
		return result
	}

	result.Success = true
	result.Output = completion.Text
	return result
}
