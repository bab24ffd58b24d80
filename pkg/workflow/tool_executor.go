package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/llm"
	"github.com/taskweave/taskweave/pkg/tools"
)

const resolutionSystemPrompt = `You select the tool for one step of a plan. Call exactly one of the available tools with appropriate arguments. If no available tool fits the step, reply with the text "none" and do not call any tool.`

// ToolExecutor resolves which registered tool a tool step needs and invokes
// it. Resolution is skipped when the classifier already attached a hint.
type ToolExecutor struct {
	client      llm.Client
	registry    *tools.Registry
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewToolExecutor creates a ToolExecutor.
func NewToolExecutor(client llm.Client, registry *tools.Registry, cfg *config.ToolConfig) *ToolExecutor {
	return &ToolExecutor{
		client:      client,
		registry:    registry,
		callTimeout: cfg.CallTimeout(),
		logger:      slog.With("component", "tool-executor"),
	}
}

// Execute resolves and invokes the tool for a step. A failed resolution
// (LLM error or decline) yields tool_not_found: the step was misclassified
// upstream, the workflow records it and continues.
func (e *ToolExecutor) Execute(ctx context.Context, step Step) StepResult {
	start := time.Now()
	result := StepResult{StepIndex: step.Index, Kind: StepKindTool}
	fail := func(kind ErrorKind, text string) StepResult {
		result.Error = kind
		result.ErrorText = text
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	name, args := "", map[string]any{}
	if step.ToolHint != nil {
		name, args = step.ToolHint.Name, step.ToolHint.Args
	} else {
		var err error
		name, args, err = e.resolve(ctx, step.Description)
		if err != nil {
			return fail(ErrToolNotFound, err.Error())
		}
	}

	tool, err := e.registry.Get(name)
	if err != nil {
		return fail(ErrToolNotFound, fmt.Sprintf("tool %q is not registered", name))
	}

	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	toolResult := tool.Execute(callCtx, args)
	result.DurationMS = time.Since(start).Milliseconds()

	if toolResult == nil {
		result.Error = ErrToolExecutionFailed
		result.ErrorText = fmt.Sprintf("tool %q returned no result", name)
		return result
	}
	if !toolResult.Success {
		kind, text := ErrToolExecutionFailed, "tool execution failed"
		if toolResult.Error != nil {
			text = toolResult.Error.Message
			if toolResult.Error.Kind == tools.ErrorKindInvalidArguments {
				kind = ErrInvalidArguments
			}
		}
		result.Error = kind
		result.ErrorText = text
		return result
	}

	result.Success = true
	result.Output = toolResult.Output
	return result
}

// resolve asks the LLM which registered tool the step needs. A decline or
// an LLM failure both surface as errors mapped to tool_not_found by the
// caller.
func (e *ToolExecutor) resolve(ctx context.Context, description string) (string, map[string]any, error) {
	names := e.registry.List()
	if len(names) == 0 {
		return "", nil, fmt.Errorf("no tools registered")
	}

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, err := e.registry.Get(name)
		if err != nil {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: tool.Description(),
		})
	}

	completion, err := e.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: resolutionSystemPrompt},
		{Role: llm.RoleUser, Content: "Step: " + description},
	}, llm.Options{Tools: defs})
	if err != nil {
		return "", nil, fmt.Errorf("tool resolution: %w", err)
	}
	if completion.ToolCall == nil {
		e.logger.Info("LLM declined tool selection", "step", description)
		return "", nil, fmt.Errorf("no suitable tool for step")
	}

	args := completion.ToolCall.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return completion.ToolCall.Name, args, nil
}
