package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are consumed in
// FIFO order; when the script is exhausted, Respond (if set) is consulted,
// otherwise an ErrLLMFailed is returned.
type MockClient struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     [][]Message

	// Respond, when non-nil, computes a response for calls beyond the script.
	Respond func(messages []Message, opts Options) (*Completion, error)
}

type mockResponse struct {
	completion *Completion
	err        error
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueText enqueues a plain text completion.
func (m *MockClient) QueueText(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{completion: &Completion{Text: text}})
	return m
}

// QueueToolCall enqueues a tool-call completion.
func (m *MockClient) QueueToolCall(name string, args map[string]any) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{
		completion: &Completion{ToolCall: &ToolCall{Name: name, Arguments: args}},
	})
	return m
}

// QueueError enqueues a failure.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, messages)
	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		m.mu.Unlock()
		return next.completion, next.err
	}
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(messages, opts)
	}
	return nil, fmt.Errorf("%w: mock script exhausted", ErrLLMFailed)
}

// Close implements Client.
func (m *MockClient) Close() error { return nil }

// Calls returns the conversations received so far.
func (m *MockClient) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
