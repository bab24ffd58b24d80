package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/bus"
	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/events"
	"github.com/taskweave/taskweave/pkg/flow"
	"github.com/taskweave/taskweave/pkg/llm"
	"github.com/taskweave/taskweave/pkg/planner"
	"github.com/taskweave/taskweave/pkg/queue"
	"github.com/taskweave/taskweave/pkg/tools"
	"github.com/taskweave/taskweave/pkg/workflow"
)

type serverFixture struct {
	server *Server
	store  *workflow.Store
	mock   *llm.MockClient
	pool   *queue.Pool
}

// dispatcher routes queue executions by workflow mode, mirroring the
// production wiring.
type dispatcher struct {
	store  *workflow.Store
	engine *workflow.Engine
	flow   *flow.Flow
}

func (d *dispatcher) Execute(ctx context.Context, workflowID string) {
	snapshot, err := d.store.Snapshot(workflowID)
	if err != nil {
		return
	}
	if snapshot.Mode == "multi" {
		d.flow.Execute(ctx, workflowID)
		return
	}
	d.engine.Execute(ctx, workflowID)
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	cfg := config.DefaultConfig()
	b := bus.New()
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
	broadcaster := events.NewBroadcaster(b, cfg.Progress)
	p := planner.New(mock, cfg.Planner)

	engine := workflow.NewEngine(p, runner, store, broadcaster, cfg.Context)
	fl := flow.New(p, runner, flow.NewComplexityAnalyzer(classifier), store, broadcaster, cfg.MultiAgent, cfg.Context)

	pool := queue.NewPool(&dispatcher{store: store, engine: engine, flow: fl}, cfg.Queue)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	engine.SetSubmitter(pool)
	fl.SetSubmitter(pool)

	connManager := events.NewConnectionManager(cfg.Progress, cfg.Transport)
	connManager.BindBus(b)
	t.Cleanup(connManager.Shutdown)

	server := NewServer(cfg.Server, engine, fl, store, pool, connManager)
	return &serverFixture{server: server, store: store, mock: mock, pool: pool}
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitSimple_Accepted(t *testing.T) {
	f := newServerFixture(t)
	f.mock.QueueText("1. Summarize the request")
	f.mock.QueueText("done")

	rec := postJSON(f.server.Handler(), "/workflows/simple",
		`{"initial_task":"summarize my request"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp WorkflowAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.WorkflowID)
	assert.Equal(t, "accepted", resp.Status)

	require.Eventually(t, func() bool {
		snapshot, err := f.store.Snapshot(resp.WorkflowID)
		return err == nil && snapshot.Status.Terminal()
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitSimple_EmptyTaskRejected(t *testing.T) {
	f := newServerFixture(t)

	rec := postJSON(f.server.Handler(), "/workflows/simple", `{"initial_task":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMulti_Accepted(t *testing.T) {
	f := newServerFixture(t)
	f.mock.QueueText("1. Answer the question")
	f.mock.QueueText("answered")

	rec := postJSON(f.server.Handler(), "/workflows/multi",
		`{"initial_task":"answer briefly"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp WorkflowAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		snapshot, err := f.store.Snapshot(resp.WorkflowID)
		return err == nil && snapshot.Status.Terminal()
	}, time.Second, 5*time.Millisecond)

	snapshot, _ := f.store.Snapshot(resp.WorkflowID)
	assert.Equal(t, "multi", snapshot.Mode)
}

type failingSubmitter struct{ err error }

func (s *failingSubmitter) Submit(string) error { return s.err }

func TestSubmit_QueueFullReturns503(t *testing.T) {
	cfg := config.DefaultConfig()
	b := bus.New()
	mock := llm.NewMockClient()
	registry := tools.NewRegistry()
	classifier := workflow.NewClassifier(cfg.Classifier)
	runner := workflow.NewStepRunner(
		classifier,
		workflow.NewGenericExecutor(mock),
		workflow.NewToolExecutor(mock, registry, cfg.Tool),
	)
	store := workflow.NewStore()
	engine := workflow.NewEngine(planner.New(mock, cfg.Planner), runner, store,
		events.NewBroadcaster(b, cfg.Progress), cfg.Context)
	engine.SetSubmitter(&failingSubmitter{err: queue.ErrQueueFull})

	server := NewServer(cfg.Server, engine, nil, store, nil, nil)
	rec := postJSON(server.Handler(), "/workflows/simple", `{"initial_task":"anything"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetWorkflow(t *testing.T) {
	f := newServerFixture(t)
	f.store.Create(&workflow.Workflow{
		ID:          "wf-known",
		InitialTask: "inspect",
		Mode:        "simple",
		Status:      workflow.StatusPending,
		StartedAt:   time.Now(),
	})

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-known", nil)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var snapshot workflow.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		assert.Equal(t, "wf-known", snapshot.WorkflowID)
		assert.Equal(t, workflow.StatusPending, snapshot.Status)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/nope", nil)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelWorkflow(t *testing.T) {
	f := newServerFixture(t)

	t.Run("not found", func(t *testing.T) {
		rec := postJSON(f.server.Handler(), "/workflows/nope/cancel", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("pending workflow cancels and stays cancelled", func(t *testing.T) {
		f.store.Create(&workflow.Workflow{
			ID:          "wf-pending",
			InitialTask: "slow task",
			Mode:        "simple",
			Status:      workflow.StatusPending,
			StartedAt:   time.Now(),
		})

		rec := postJSON(f.server.Handler(), "/workflows/wf-pending/cancel", "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		snapshot, err := f.store.Snapshot("wf-pending")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusFailed, snapshot.Status)
		assert.Equal(t, workflow.ErrCancelled, snapshot.Error)

		// Idempotent: a second cancel is still 202.
		rec = postJSON(f.server.Handler(), "/workflows/wf-pending/cancel", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Contains(t, resp.Checks, "worker_pool")
}

func TestWebSocket_PushAndPing(t *testing.T) {
	f := newServerFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/client-1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Ping → pong.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame events.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, events.FrameTypePong, frame.Type)

	// A workflow submission's lifecycle frames reach the subscriber.
	f.mock.QueueText("1. Summarize the request")
	f.mock.QueueText("done")
	rec := postJSON(f.server.Handler(), "/workflows/simple",
		`{"initial_task":"summarize my request"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	seen := make(map[string]bool)
	for !seen[events.FrameTypeWorkflowCompleted] {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &frame))
		seen[frame.Type] = true
	}
	assert.True(t, seen[events.FrameTypeWorkflowStarted])
	assert.True(t, seen[events.FrameTypeProgress])
}

func TestWebSocket_ReconnectKeepsNewConnection(t *testing.T) {
	f := newServerFixture(t)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/client-1"
	conn1, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn1.Close(websocket.StatusNormalClosure, "test done")

	// Same client_id reconnects; the first connection is replaced.
	conn2, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn2.Close(websocket.StatusNormalClosure, "test done")

	// The server closes the first connection during the swap. Its read loop
	// reacting to that close must not take the second connection with it.
	_, _, err = conn1.Read(ctx)
	require.Error(t, err, "replaced connection should be closed by the server")

	f.mock.QueueText("1. Summarize the request")
	f.mock.QueueText("done")
	rec := postJSON(f.server.Handler(), "/workflows/simple",
		`{"initial_task":"summarize my request"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var frame events.Frame
	for frame.Type != events.FrameTypeWorkflowCompleted {
		_, data, err := conn2.Read(ctx)
		require.NoError(t, err, "second connection must keep receiving frames")
		require.NoError(t, json.Unmarshal(data, &frame))
	}
}

func TestWS_MissingClientID(t *testing.T) {
	f := newServerFixture(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := f.server.wsHandler(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok, "expected echo.HTTPError") {
			assert.Equal(t, http.StatusBadRequest, he.Code)
		}
	}
}
