// Package llm defines the LLM client consumed by the planner and the step
// executors, plus an OpenAI-compatible implementation.
//
// From the orchestrator's perspective a call either returns a completion or
// fails; retries and fallback happen inside the client implementation.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrLLMFailed wraps every provider-side failure (transport error, timeout,
// empty response). Callers map it into the workflow error taxonomy.
var ErrLLMFailed = errors.New("llm call failed")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// ToolDefinition describes a callable the model may request.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object; nil means "any object".
	Parameters map[string]any
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Options tune a single Complete call. Zero values leave provider defaults.
type Options struct {
	MaxTokens   int
	Temperature *float64
	// Timeout overrides the client's configured per-call deadline.
	Timeout time.Duration
	// Tools, when non-empty, lets the model answer with a ToolCall instead
	// of text.
	Tools []ToolDefinition
}

// Completion is the result of a Complete call. Exactly one of Text or
// ToolCall is populated.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// Client is the minimal LLM surface the orchestrator consumes.
type Client interface {
	// Complete sends the conversation and returns the model's answer.
	// Errors (including deadline expiry) wrap ErrLLMFailed.
	Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error)

	// Close releases underlying transport resources.
	Close() error
}
