package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/taskweave/taskweave/pkg/config"
)

// OpenAIClient implements Client against any OpenAI-compatible chat
// completions endpoint (OpenAI itself, or a local gateway such as vLLM,
// Ollama, LiteLLM).
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature *float64
	maxTokens   int
	callTimeout time.Duration
}

// NewOpenAIClient builds a client from configuration. The API key is read
// from the environment variable named by cfg.APIKeyEnv.
func NewOpenAIClient(cfg *config.LLMConfig) (*OpenAIClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("LLM API key environment variable %s is empty", cfg.APIKeyEnv)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.BaseURL),
	)

	slog.Info("LLM client configured", "base_url", cfg.BaseURL, "model", cfg.Model)

	return &OpenAIClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout(),
	}, nil
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	timeout := c.callTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(messages),
	}

	if temp := firstNonNil(opts.Temperature, c.temperature); temp != nil {
		params.Temperature = openai.Float(*temp)
	}
	if maxTokens := opts.MaxTokens; maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	} else if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: provider returned no choices", ErrLLMFailed)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%w: malformed tool call arguments: %v", ErrLLMFailed, err)
			}
		}
		return &Completion{ToolCall: &ToolCall{
			Name:      call.Function.Name,
			Arguments: args,
		}}, nil
	}

	return &Completion{Text: msg.Content}, nil
}

// Close implements Client. The underlying HTTP client needs no teardown.
func (c *OpenAIClient) Close() error { return nil }

func convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func convertTools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
