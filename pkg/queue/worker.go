package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// workerStatus is the worker's current state.
type workerStatus string

const (
	workerStatusIdle    workerStatus = "idle"
	workerStatusWorking workerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID           string       `json:"id"`
	Status       workerStatus `json:"status"`
	CurrentID    string       `json:"current_workflow_id,omitempty"`
	Processed    int          `json:"processed"`
	LastActivity time.Time    `json:"last_activity"`
}

// worker drains the pool's task channel one workflow at a time.
type worker struct {
	id   string
	pool *Pool

	mu           sync.RWMutex
	status       workerStatus
	currentID    string
	processed    int
	lastActivity time.Time

	logger *slog.Logger
}

func newWorker(id string, pool *Pool) *worker {
	return &worker{
		id:           id,
		pool:         pool,
		status:       workerStatusIdle,
		lastActivity: time.Now(),
		logger:       slog.With("component", "queue", "worker_id", id),
	}
}

// run is the worker loop. Exits on pool stop or context cancellation;
// the in-flight workflow is finished first.
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	w.logger.Info("Worker started")

	for {
		select {
		case <-w.pool.stopCh:
			w.logger.Info("Worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("Context cancelled, worker shutting down")
			return
		case workflowID := <-w.pool.tasks:
			w.process(ctx, workflowID)
		}
	}
}

func (w *worker) process(ctx context.Context, workflowID string) {
	w.setStatus(workerStatusWorking, workflowID)
	defer w.setStatus(workerStatusIdle, "")

	runCtx := ctx
	if timeout := w.pool.cfg.WorkflowTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	w.pool.executor.Execute(runCtx, workflowID)

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	w.logger.Info("Workflow processed",
		"workflow_id", workflowID, "duration", time.Since(started))
}

func (w *worker) setStatus(status workerStatus, workflowID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentID = workflowID
	w.lastActivity = time.Now()
}

func (w *worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:           w.id,
		Status:       w.status,
		CurrentID:    w.currentID,
		Processed:    w.processed,
		LastActivity: w.lastActivity,
	}
}
