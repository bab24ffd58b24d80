package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/llm"
)

func newTestPlanner(client llm.Client) *Planner {
	return New(client, &config.PlannerConfig{MaxSteps: 20})
}

func TestDecompose_NumberedList(t *testing.T) {
	mock := llm.NewMockClient().QueueText(
		"1. Search for Python web frameworks\n" +
			"2. Compare the top three results\n" +
			"3. Write a summary")
	p := newTestPlanner(mock)

	steps, err := p.Decompose(context.Background(), "compare python frameworks", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Search for Python web frameworks",
		"Compare the top three results",
		"Write a summary",
	}, steps)
}

func TestDecompose_TolerantFormats(t *testing.T) {
	tests := map[string]struct {
		response string
		want     []string
	}{
		"bulleted": {
			response: "- fetch the data\n- analyze it",
			want:     []string{"fetch the data", "analyze it"},
		},
		"plain lines": {
			response: "fetch the data\n\nanalyze it\n",
			want:     []string{"fetch the data", "analyze it"},
		},
		"parenthesized numbers": {
			response: "1) fetch the data\n2) analyze it",
			want:     []string{"fetch the data", "analyze it"},
		},
		"preamble and trailing commentary": {
			response: "Here is the plan:\n1. fetch the data\n2. analyze it\n\nLet me know if you need more detail.",
			want:     []string{"fetch the data", "analyze it"},
		},
		"blank lines between items": {
			response: "1. fetch the data\n\n2. analyze it",
			want:     []string{"fetch the data", "analyze it"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mock := llm.NewMockClient().QueueText(tc.response)
			p := newTestPlanner(mock)

			steps, err := p.Decompose(context.Background(), "task", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, steps)
		})
	}
}

func TestDecompose_EmptyPlan(t *testing.T) {
	mock := llm.NewMockClient().QueueText("   \n\n  ")
	p := newTestPlanner(mock)

	_, err := p.Decompose(context.Background(), "task", nil)
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestDecompose_LLMFailure(t *testing.T) {
	mock := llm.NewMockClient().QueueError(errors.New("provider down"))
	p := newTestPlanner(mock)

	_, err := p.Decompose(context.Background(), "task", nil)
	assert.Error(t, err)
}

func TestDecompose_TruncatesOversizedPlan(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString("1. step\n")
	}
	mock := llm.NewMockClient().QueueText(sb.String())
	p := New(mock, &config.PlannerConfig{MaxSteps: 4})

	steps, err := p.Decompose(context.Background(), "task", nil)
	require.NoError(t, err)
	assert.Len(t, steps, 4)
}

func TestDecompose_HintsIncludedInPrompt(t *testing.T) {
	mock := llm.NewMockClient().QueueText("1. do the thing")
	p := newTestPlanner(mock)

	_, err := p.Decompose(context.Background(), "task",
		map[string]string{"region": "eu-west-1"})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	userMsg := calls[0][len(calls[0])-1]
	assert.Contains(t, userMsg.Content, "region: eu-west-1")
}
