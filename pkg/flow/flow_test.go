package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/bus"
	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/events"
	"github.com/taskweave/taskweave/pkg/llm"
	"github.com/taskweave/taskweave/pkg/planner"
	"github.com/taskweave/taskweave/pkg/tools"
	"github.com/taskweave/taskweave/pkg/workflow"
)

type inlineSubmitter struct{ flow *Flow }

func (s *inlineSubmitter) Submit(id string) error {
	s.flow.Execute(context.Background(), id)
	return nil
}

type progressRecorder struct {
	mu      sync.Mutex
	updates []events.ProgressUpdate
}

func recordProgress(b *bus.Bus) *progressRecorder {
	r := &progressRecorder{}
	b.Subscribe(bus.TopicProgressUpdate, func(_ bus.Topic, payload any) {
		if p, ok := payload.(events.ProgressUpdate); ok {
			r.mu.Lock()
			r.updates = append(r.updates, p)
			r.mu.Unlock()
		}
	})
	return r
}

func (r *progressRecorder) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Progress
	}
	return out
}

func (r *progressRecorder) executionTypes() map[events.ExecutionType]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[events.ExecutionType]bool)
	for _, u := range r.updates {
		if u.ExecutionType != "" {
			seen[u.ExecutionType] = true
		}
	}
	return seen
}

type flowFixture struct {
	flow     *Flow
	store    *workflow.Store
	mock     *llm.MockClient
	progress *progressRecorder
	bus      *bus.Bus
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	cfg := config.DefaultConfig()
	b := bus.New()
	progress := recordProgress(b)
	mock := llm.NewMockClient()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register("web_search", tools.NewEchoTool("web_search")))

	classifier := workflow.NewClassifier(cfg.Classifier)
	runner := workflow.NewStepRunner(
		classifier,
		workflow.NewGenericExecutor(mock),
		workflow.NewToolExecutor(mock, registry, cfg.Tool),
	)
	store := workflow.NewStore()
	f := New(
		planner.New(mock, cfg.Planner),
		runner,
		NewComplexityAnalyzer(classifier),
		store,
		events.NewBroadcaster(b, cfg.Progress),
		cfg.MultiAgent,
		cfg.Context,
	)
	f.SetSubmitter(&inlineSubmitter{flow: f})

	return &flowFixture{flow: f, store: store, mock: mock, progress: progress, bus: b}
}

func TestComplexity_SimpleTaskScoresLow(t *testing.T) {
	cfg := config.DefaultConfig()
	a := NewComplexityAnalyzer(workflow.NewClassifier(cfg.Classifier))

	score := a.Score("Say hello")
	assert.LessOrEqual(t, score, cfg.MultiAgent.SingleMax)
}

func TestComplexity_RichTaskScoresHigh(t *testing.T) {
	cfg := config.DefaultConfig()
	a := NewComplexityAnalyzer(workflow.NewClassifier(cfg.Classifier))

	task := "Search the entire product catalog for pricing anomalies, and then " +
		"fetch the complete customer review history for every flagged product, " +
		"and then generate a comprehensive report covering all regional markets " +
		"with detailed breakdowns per category, currency and quarter so the " +
		"sales team can validate the findings before the board meeting."
	score := a.Score(task)
	assert.GreaterOrEqual(t, score, cfg.MultiAgent.ParallelMin)
	assert.LessOrEqual(t, score, 1.0)
}

func TestComplexity_Deterministic(t *testing.T) {
	cfg := config.DefaultConfig()
	a := NewComplexityAnalyzer(workflow.NewClassifier(cfg.Classifier))

	task := "Fetch the data and then analyze it"
	assert.Equal(t, a.Score(task), a.Score(task))
}

func TestPartitionWaves_IndependentStepsShareWave(t *testing.T) {
	steps := []workflow.Step{
		{Index: 1, Description: "Search for pricing information"},
		{Index: 2, Description: "Download customer reviews"},
		{Index: 3, Description: "Fetch competitor catalogs"},
	}

	waves := partitionWaves(steps)
	require.Len(t, waves, 1)
	assert.Len(t, waves[0], 3)
	assert.True(t, hasParallelism(waves))
}

func TestPartitionWaves_OverlapCreatesDependency(t *testing.T) {
	steps := []workflow.Step{
		{Index: 1, Description: "Download quarterly sales figures"},
		{Index: 2, Description: "Summarize quarterly sales figures trends"},
	}

	waves := partitionWaves(steps)
	require.Len(t, waves, 2)
	assert.Equal(t, []int{0}, waves[0])
	assert.Equal(t, []int{1}, waves[1])
	assert.False(t, hasParallelism(waves))
}

func TestPartitionWaves_NoSignalDefaultsSequential(t *testing.T) {
	steps := []workflow.Step{
		{Index: 1, Description: "go"},
		{Index: 2, Description: "do it"},
	}

	waves := partitionWaves(steps)
	require.Len(t, waves, 2)
	assert.False(t, hasParallelism(waves))
}

func TestFlow_SingleStrategyTruncatesPlan(t *testing.T) {
	f := newFlowFixture(t)
	f.mock.QueueText("1. Greet the user warmly\n2. Wish them a pleasant day")
	f.mock.QueueText("Hello!")

	id, err := f.flow.Start("Say hello", nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
	assert.Len(t, snap.Results, 1, "single strategy runs only the first step")
	assert.Equal(t, "multi", snap.Mode)

	assert.Equal(t, []float64{5, 15, 25, 40, 85, 95}, f.progress.values())
	assert.Equal(t, map[events.ExecutionType]bool{events.ExecutionTypeSingle: true},
		f.progress.executionTypes())
}

func TestFlow_SequentialStrategy(t *testing.T) {
	f := newFlowFixture(t)
	// Length, two tool keywords and a breadth marker land between the
	// single and parallel thresholds.
	task := "Search the product catalog and fetch the complete pricing data for quarterly review"
	f.mock.QueueText("1. Search the catalog for products\n2. Summarize the pricing for leadership")
	f.mock.QueueToolCall("web_search", map[string]any{"query": "products"})
	f.mock.QueueText("pricing summarized")

	id, err := f.flow.Start(task, nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
	assert.Len(t, snap.Results, 2)
	assert.True(t, f.progress.executionTypes()[events.ExecutionTypeSequential])
	assert.Contains(t, f.progress.values(), 55.0)
}

func parallelTask() string {
	return "Search the entire product catalog for pricing anomalies, and then " +
		"fetch the complete customer review history for every flagged product, " +
		"and then generate a comprehensive report covering all regional markets " +
		"with detailed breakdowns per category, currency and quarter so the " +
		"sales team can validate the findings before the board meeting."
}

func TestFlow_ParallelStrategy(t *testing.T) {
	f := newFlowFixture(t)
	f.mock.QueueText(
		"1. Search for pricing information\n" +
			"2. Download customer reviews\n" +
			"3. Fetch competitor catalogs")
	// Three independent tool steps; each resolves to the echo tool.
	for i := 0; i < 3; i++ {
		f.mock.QueueToolCall("web_search", map[string]any{"query": "x"})
	}

	id, err := f.flow.Start(parallelTask(), nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
	assert.Len(t, snap.Results, 3)
	assert.True(t, f.progress.executionTypes()[events.ExecutionTypeParallel])
	assert.Contains(t, f.progress.values(), 65.0)
}

func TestFlow_ParallelWaveStartedBeforeCompletions(t *testing.T) {
	f := newFlowFixture(t)

	var mu sync.Mutex
	var order []bus.Topic
	for _, topic := range []bus.Topic{bus.TopicWorkflowStepStarted, bus.TopicWorkflowStepCompleted} {
		f.bus.Subscribe(topic, func(topic bus.Topic, _ any) {
			mu.Lock()
			order = append(order, topic)
			mu.Unlock()
		})
	}

	f.mock.QueueText(
		"1. Search for pricing information\n" +
			"2. Download customer reviews\n" +
			"3. Fetch competitor catalogs")
	for i := 0; i < 3; i++ {
		f.mock.QueueToolCall("web_search", map[string]any{"query": "x"})
	}

	_, err := f.flow.Start(parallelTask(), nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 6)
	for _, topic := range order[:3] {
		assert.Equal(t, bus.TopicWorkflowStepStarted, topic)
	}
	for _, topic := range order[3:] {
		assert.Equal(t, bus.TopicWorkflowStepCompleted, topic)
	}
}

func TestFlow_DependencyUnavailable(t *testing.T) {
	f := newFlowFixture(t)
	f.mock.QueueText(
		"1. Download quarterly sales figures\n" +
			"2. Fetch competitor press releases\n" +
			"3. Summarize quarterly sales figures trends")
	// Both wave-one tool steps resolve to unregistered tools and fail.
	f.mock.QueueToolCall("missing_a", nil)
	f.mock.QueueToolCall("missing_b", nil)

	id, err := f.flow.Start(parallelTask(), nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusFailed, snap.Status)
	assert.Equal(t, workflow.ErrDependencyUnavailable, snap.Error)
	assert.Len(t, snap.Results, 2, "the gated step never ran")
}

func TestFlow_PartialSuccessInWave(t *testing.T) {
	f := newFlowFixture(t)
	f.mock.QueueText(
		"1. Search for pricing information\n" +
			"2. Download customer reviews\n" +
			"3. Fetch competitor catalogs")
	f.mock.Respond = func(_ []llm.Message, opts llm.Options) (*llm.Completion, error) {
		// Tool resolution calls carry tool definitions.
		if len(opts.Tools) > 0 {
			return &llm.Completion{ToolCall: &llm.ToolCall{Name: "web_search"}}, nil
		}
		return &llm.Completion{Text: "ok"}, nil
	}

	// One of the three resolves to a missing tool.
	f.mock.QueueToolCall("missing_tool", nil)

	id, err := f.flow.Start(parallelTask(), nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusPartialSuccess, snap.Status)
	require.Len(t, snap.Results, 3)

	failures := 0
	for _, r := range snap.Results {
		if !r.Success {
			failures++
			assert.Equal(t, workflow.ErrToolNotFound, r.Error)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestFlow_EmptyPlanFails(t *testing.T) {
	f := newFlowFixture(t)
	f.mock.QueueText("")

	id, err := f.flow.Start("Say hello", nil)
	require.NoError(t, err)

	snap, _ := f.store.Snapshot(id)
	assert.Equal(t, workflow.StatusFailed, snap.Status)
	assert.Equal(t, workflow.ErrEmptyPlan, snap.Error)
	assert.Empty(t, snap.Results)
}

func TestFlow_RejectsEmptyTask(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.flow.Start("", nil)
	assert.Error(t, err)
}
