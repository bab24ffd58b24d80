package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/events"
	"github.com/taskweave/taskweave/pkg/planner"
)

// Submitter schedules a workflow for background execution. Implemented by
// the queue pool.
type Submitter interface {
	Submit(workflowID string) error
}

// Notifier is called once per workflow on the terminal transition.
// Implementations must not block the engine for long.
type Notifier interface {
	WorkflowFinished(snapshot Snapshot)
}

// Engine drives workflows through plan → classify → dispatch → aggregate.
// One Execute call owns its workflow record exclusively until the terminal
// transition.
type Engine struct {
	planner     *planner.Planner
	runner      *StepRunner
	store       *Store
	broadcaster *events.Broadcaster
	submitter   Submitter
	notifier    Notifier // optional

	contextCfg *config.ContextConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	logger *slog.Logger
}

// NewEngine creates an Engine. The submitter is set later via SetSubmitter
// because the queue pool needs the engine as its executor first.
func NewEngine(p *planner.Planner, runner *StepRunner, store *Store, broadcaster *events.Broadcaster, contextCfg *config.ContextConfig) *Engine {
	return &Engine{
		planner:     p,
		runner:      runner,
		store:       store,
		broadcaster: broadcaster,
		contextCfg:  contextCfg,
		cancels:     make(map[string]context.CancelFunc),
		logger:      slog.With("component", "engine"),
	}
}

// SetSubmitter wires the background scheduler.
func (e *Engine) SetSubmitter(s Submitter) { e.submitter = s }

// SetNotifier wires an optional terminal-event notifier.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// StartSimple accepts a task, creates a pending workflow and schedules it.
// Returns immediately; planning and execution failures surface on the push
// channel and the snapshot endpoint, never here.
func (e *Engine) StartSimple(initialTask string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(initialTask) == "" {
		return "", fmt.Errorf("initial_task must not be empty")
	}

	id := uuid.New().String()
	e.store.Create(&Workflow{
		ID:          id,
		InitialTask: initialTask,
		Mode:        "simple",
		Metadata:    metadata,
		Status:      StatusPending,
		StartedAt:   time.Now(),
	})

	if err := e.submitter.Submit(id); err != nil {
		now := time.Now()
		_ = e.store.Update(id, func(w *Workflow) {
			w.Status = StatusFailed
			w.ErrorKind = ErrInternal
			w.ErrorText = err.Error()
			w.CompletedAt = &now
		})
		return "", fmt.Errorf("schedule workflow: %w", err)
	}

	e.logger.Info("Workflow accepted", "workflow_id", id)
	return id, nil
}

// Execute runs the full lifecycle for one workflow. Invoked by a queue
// worker.
func (e *Engine) Execute(ctx context.Context, workflowID string) {
	status, err := e.store.Status(workflowID)
	if err != nil {
		e.logger.Error("Unknown workflow submitted", "workflow_id", workflowID)
		return
	}
	if status.Terminal() {
		// Cancelled while still pending.
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[workflowID] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, workflowID)
		e.mu.Unlock()
	}()

	// Individual LLM and tool calls carry their own deadlines; runCtx
	// cancellation is observed between steps only, so an in-flight step is
	// never force-aborted.
	stepCtx := context.WithoutCancel(runCtx)

	var initialTask string
	_ = e.store.Update(workflowID, func(w *Workflow) {
		w.Status = StatusRunning
		w.StartedAt = time.Now()
		initialTask = w.InitialTask
	})

	e.broadcaster.BroadcastStarted(workflowID, initialTask, 0)
	e.broadcaster.BroadcastProgress(workflowID, "Planning", 5, "", nil)

	descriptions, err := e.planner.Decompose(stepCtx, initialTask, nil)
	if err != nil {
		kind := ErrLLMFailed
		if errors.Is(err, planner.ErrEmptyPlan) {
			kind = ErrEmptyPlan
		}
		e.fail(workflowID, kind, err.Error())
		return
	}

	total := len(descriptions)
	steps := make([]Step, total)
	for i, desc := range descriptions {
		steps[i] = Step{Index: i + 1, Description: desc}
	}
	_ = e.store.Update(workflowID, func(w *Workflow) { w.Plan = steps })

	e.broadcaster.BroadcastProgress(workflowID, "Plan ready", 10, "", nil)

	accumulator := NewContextAccumulator(e.contextCfg)
	anyFailed := false

	for i := range steps {
		if runCtx.Err() != nil {
			e.fail(workflowID, ErrCancelled, "workflow cancelled")
			return
		}

		step := &steps[i]
		step.Kind = e.runner.Classify(step.Description)
		_ = e.store.Update(workflowID, func(w *Workflow) { w.Plan[i].Kind = step.Kind })

		e.broadcaster.BroadcastStep(workflowID, step.Index, step.Description,
			events.StepPhaseStarted, false, nil, "", 0)
		e.broadcaster.BroadcastProgress(workflowID,
			fmt.Sprintf("Executing step %d of %d", step.Index, total),
			stepProgress(step.Index-1, total), "", nil)

		result := e.runner.Run(stepCtx, *step, accumulator.Context())

		_ = e.store.Update(workflowID, func(w *Workflow) {
			w.Results = append(w.Results, result)
		})
		if result.Success {
			accumulator.Add(step.Index, step.Description, result.Output)
		} else {
			anyFailed = true
		}

		e.broadcaster.BroadcastStep(workflowID, step.Index, step.Description,
			events.StepPhaseCompleted, result.Success, result.Output,
			string(result.Error), time.Duration(result.DurationMS)*time.Millisecond)
		e.broadcaster.BroadcastProgress(workflowID,
			fmt.Sprintf("Executing step %d of %d", step.Index, total),
			stepProgress(step.Index, total), "", nil)

		if result.Error.Fatal() {
			e.fail(workflowID, result.Error, result.ErrorText)
			return
		}
	}

	if runCtx.Err() != nil {
		e.fail(workflowID, ErrCancelled, "workflow cancelled")
		return
	}

	e.complete(workflowID, anyFailed)
}

// Cancel requests cooperative cancellation. Idempotent: terminal workflows
// are left untouched and a second call is a no-op.
func (e *Engine) Cancel(workflowID string) error {
	status, err := e.store.Status(workflowID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil
	}

	if status == StatusPending {
		// Never started; fail it directly so the worker skips it.
		e.fail(workflowID, ErrCancelled, "cancelled before execution")
		return nil
	}

	e.mu.Lock()
	cancel, ok := e.cancels[workflowID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// fail records the failed terminal state and emits workflow.failed.
func (e *Engine) fail(workflowID string, kind ErrorKind, text string) {
	now := time.Now()
	updated := false
	var partial []StepResult
	_ = e.store.Update(workflowID, func(w *Workflow) {
		if w.Status.Terminal() {
			return
		}
		w.Status = StatusFailed
		w.ErrorKind = kind
		w.ErrorText = text
		w.CompletedAt = &now
		partial = append([]StepResult(nil), w.Results...)
		updated = true
	})
	if !updated {
		return
	}

	e.logger.Warn("Workflow failed",
		"workflow_id", workflowID, "error_kind", kind, "error", text)
	var partialResults any
	if len(partial) > 0 {
		partialResults = partial
	}
	e.broadcaster.BroadcastFailed(workflowID, string(kind), text, partialResults)
	e.notifyTerminal(workflowID)
}

// complete aggregates step results into the successful terminal state and
// emits workflow.completed.
func (e *Engine) complete(workflowID string, anyFailed bool) {
	now := time.Now()
	var failedSteps []string
	var total, succeeded int
	_ = e.store.Update(workflowID, func(w *Workflow) {
		if w.Status.Terminal() {
			return
		}
		if anyFailed {
			w.Status = StatusPartialSuccess
		} else {
			w.Status = StatusCompleted
		}
		w.CompletedAt = &now
		total = len(w.Results)
		for _, r := range w.Results {
			if r.Success {
				succeeded++
			} else {
				failedSteps = append(failedSteps,
					fmt.Sprintf("step %d (%s)", r.StepIndex, r.Error))
			}
		}
	})

	status := StatusCompleted
	note := ""
	if anyFailed {
		status = StatusPartialSuccess
		note = "failed: " + strings.Join(failedSteps, ", ")
	}
	summary := fmt.Sprintf("%d of %d steps completed successfully", succeeded, total)

	e.broadcaster.BroadcastProgress(workflowID, "Finalizing", 100, "", nil)
	e.broadcaster.BroadcastCompleted(workflowID, string(status), summary, note)
	e.logger.Info("Workflow finished",
		"workflow_id", workflowID, "status", status, "succeeded", succeeded, "total", total)
	e.notifyTerminal(workflowID)
}

func (e *Engine) notifyTerminal(workflowID string) {
	if e.notifier == nil {
		return
	}
	snapshot, err := e.store.Snapshot(workflowID)
	if err != nil {
		return
	}
	e.notifier.WorkflowFinished(snapshot)
}

// stepProgress maps completed step counts onto the 10..95 progress band.
func stepProgress(completed, total int) float64 {
	if total <= 0 {
		return 10
	}
	return 10 + float64(85*completed/total)
}
