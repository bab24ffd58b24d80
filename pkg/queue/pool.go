// Package queue provides the bounded in-memory submission queue and the
// worker pool that drains it. The pool implements workflow.Submitter, so
// the engine and the multi-agent flow hand accepted workflow IDs straight
// to it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskweave/taskweave/pkg/config"
)

// Submission errors surfaced to the API layer.
var (
	// ErrQueueFull is returned when the submission queue is at capacity.
	// The API maps it to 503.
	ErrQueueFull = errors.New("submission queue full")
	// ErrPoolStopped is returned for submissions after shutdown began.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Executor runs one workflow to its terminal state. Implemented by the
// engine, the multi-agent flow, or a dispatcher routing between them.
type Executor interface {
	Execute(ctx context.Context, workflowID string)
}

// Pool is a fixed-size worker pool over a bounded in-memory queue.
// Submissions are FIFO; a full queue rejects instead of blocking the
// caller.
type Pool struct {
	executor Executor
	cfg      *config.QueueConfig
	tasks    chan string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	workers []*worker

	logger *slog.Logger
}

// PoolHealth is the pool's health snapshot served by the health endpoint.
type PoolHealth struct {
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	Processed     int            `json:"processed"`
	Workers       []WorkerHealth `json:"workers"`
}

// NewPool creates a Pool. Call Start before submitting.
func NewPool(executor Executor, cfg *config.QueueConfig) *Pool {
	return &Pool{
		executor: executor,
		cfg:      cfg,
		tasks:    make(chan string, cfg.Capacity),
		stopCh:   make(chan struct{}),
		logger:   slog.With("component", "queue"),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.logger.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	p.logger.Info("Starting worker pool",
		"worker_count", p.cfg.WorkerCount, "queue_capacity", p.cfg.Capacity)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("worker-%d", i), p)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run(ctx)
	}
}

// Submit implements workflow.Submitter. It enqueues the workflow ID or
// rejects immediately when the queue is full or the pool is stopping.
func (p *Pool) Submit(workflowID string) error {
	select {
	case <-p.stopCh:
		return ErrPoolStopped
	default:
	}

	select {
	case p.tasks <- workflowID:
		return nil
	default:
		p.logger.Warn("Submission rejected, queue full",
			"workflow_id", workflowID, "capacity", p.cfg.Capacity)
		return ErrQueueFull
	}
}

// Stop signals workers to stop and waits for in-flight workflows, up to
// the configured graceful shutdown timeout. Queued but unstarted
// workflows stay pending.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool", "queue_depth", len(p.tasks))
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := p.cfg.GracefulShutdownTimeout()
	if timeout <= 0 {
		<-done
		p.logger.Info("Worker pool stopped")
		return
	}

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
	case <-time.After(timeout):
		p.logger.Warn("Shutdown timeout expired with workflows still in flight",
			"timeout", timeout)
	}
}

// Health returns the pool's current health snapshot.
func (p *Pool) Health() PoolHealth {
	p.mu.Lock()
	workers := make([]*worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	stats := make([]WorkerHealth, len(workers))
	active := 0
	processed := 0
	for i, w := range workers {
		stats[i] = w.health()
		if stats[i].Status == workerStatusWorking {
			active++
		}
		processed += stats[i].Processed
	}

	return PoolHealth{
		QueueDepth:    len(p.tasks),
		QueueCapacity: p.cfg.Capacity,
		ActiveWorkers: active,
		TotalWorkers:  len(p.workers),
		Processed:     processed,
		Workers:       stats,
	}
}

// Depth returns the number of queued, unclaimed workflows.
func (p *Pool) Depth() int { return len(p.tasks) }
