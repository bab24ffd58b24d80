package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/taskweave/taskweave/pkg/bus"
	"github.com/taskweave/taskweave/pkg/config"
)

// taskState backs the per-task monotonicity check and active_tasks. Purged a
// grace period after the terminal event so late subscribers can still catch
// the terminal frame.
type taskState struct {
	lastProgress float64
	lastStage    string
	startedAt    time.Time
	completed    bool
}

// Broadcaster turns orchestrator-facing calls into typed payloads on the
// event bus. It holds no subscriber references; fan-out is the
// ConnectionManager's job. All calls are non-blocking from the caller's
// perspective and a broadcast failure never fails a workflow.
type Broadcaster struct {
	bus         *bus.Bus
	gracePeriod time.Duration

	mu    sync.Mutex
	tasks map[string]*taskState

	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster publishing on b.
func NewBroadcaster(b *bus.Bus, cfg *config.ProgressConfig) *Broadcaster {
	return &Broadcaster{
		bus:         b,
		gracePeriod: cfg.GracePeriod(),
		tasks:       make(map[string]*taskState),
		logger:      slog.With("component", "broadcaster"),
	}
}

// BroadcastStarted announces a new workflow.
func (b *Broadcaster) BroadcastStarted(taskID, initialTask string, estimatedSteps int) {
	b.mu.Lock()
	b.tasks[taskID] = &taskState{startedAt: time.Now()}
	b.mu.Unlock()

	b.bus.Publish(bus.TopicWorkflowStarted, WorkflowStartedPayload{
		WorkflowID:     taskID,
		Task:           initialTask,
		EstimatedSteps: estimatedSteps,
		Timestamp:      now(),
	})
}

// BroadcastProgress publishes one progress update. Within one task a value
// lower than the last published one is clamped to the last value and a
// warning is logged.
func (b *Broadcaster) BroadcastProgress(taskID, stage string, progress float64, executionType ExecutionType, agents []string) {
	b.mu.Lock()
	state, ok := b.tasks[taskID]
	if !ok {
		state = &taskState{startedAt: time.Now()}
		b.tasks[taskID] = state
	}
	if progress < state.lastProgress {
		b.logger.Warn("Non-monotonic progress clamped",
			"task_id", taskID, "stage", stage,
			"progress", progress, "last_progress", state.lastProgress)
		progress = state.lastProgress
	}
	state.lastProgress = progress
	state.lastStage = stage
	b.mu.Unlock()

	b.bus.Publish(bus.TopicProgressUpdate, ProgressUpdate{
		TaskID:        taskID,
		Stage:         stage,
		Progress:      progress,
		ExecutionType: executionType,
		Agents:        agents,
		Timestamp:     now(),
	})
}

// StepPhase distinguishes the two per-step broadcasts.
type StepPhase string

// Step phases.
const (
	StepPhaseStarted   StepPhase = "started"
	StepPhaseCompleted StepPhase = "completed"
)

// BroadcastStep publishes a step lifecycle event. stepIndex is 1-based.
func (b *Broadcaster) BroadcastStep(taskID string, stepIndex int, description string, phase StepPhase, success bool, result any, errText string, duration time.Duration) {
	switch phase {
	case StepPhaseStarted:
		b.bus.Publish(bus.TopicWorkflowStepStarted, StepStartedPayload{
			WorkflowID:  taskID,
			StepIndex:   stepIndex,
			Description: description,
			Timestamp:   now(),
		})
	case StepPhaseCompleted:
		b.bus.Publish(bus.TopicWorkflowStepCompleted, StepCompletedPayload{
			WorkflowID:  taskID,
			StepIndex:   stepIndex,
			Description: description,
			Success:     success,
			Result:      result,
			Error:       errText,
			DurationMS:  duration.Milliseconds(),
			Timestamp:   now(),
		})
	}
}

// BroadcastCompleted publishes the successful terminal event. The carried
// progress is always exactly 100. status is "completed" or
// "partial_success"; partialNote describes failed steps for the latter.
func (b *Broadcaster) BroadcastCompleted(taskID, status, summary, partialNote string) {
	if !b.markCompleted(taskID, 100) {
		return
	}
	b.bus.Publish(bus.TopicWorkflowCompleted, WorkflowCompletedPayload{
		WorkflowID:         taskID,
		Status:             status,
		Summary:            summary,
		Progress:           100,
		PartialResultsNote: partialNote,
		Timestamp:          now(),
	})
	b.schedulePurge(taskID)
}

// BroadcastFailed publishes the failed terminal event. Failure may carry any
// progress value, so no clamp applies. partialResults, when non-nil, carries
// the step results recorded before the fatal error.
func (b *Broadcaster) BroadcastFailed(taskID, errorKind, message string, partialResults any) {
	if !b.markCompleted(taskID, -1) {
		return
	}
	b.bus.Publish(bus.TopicWorkflowFailed, WorkflowFailedPayload{
		WorkflowID:     taskID,
		ErrorKind:      errorKind,
		Message:        message,
		PartialResults: partialResults,
		Timestamp:      now(),
	})
	b.schedulePurge(taskID)
}

// ActiveTasks returns ids of tasks that have not reached a terminal event.
func (b *Broadcaster) ActiveTasks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.tasks))
	for id, state := range b.tasks {
		if !state.completed {
			ids = append(ids, id)
		}
	}
	return ids
}

// markCompleted flips the task to completed exactly once. progress < 0
// leaves the last progress untouched (failed terminal).
func (b *Broadcaster) markCompleted(taskID string, progress float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.tasks[taskID]
	if !ok {
		state = &taskState{startedAt: time.Now()}
		b.tasks[taskID] = state
	}
	if state.completed {
		return false
	}
	state.completed = true
	if progress >= 0 {
		state.lastProgress = progress
	}
	return true
}

func (b *Broadcaster) schedulePurge(taskID string) {
	time.AfterFunc(b.gracePeriod, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if state, ok := b.tasks[taskID]; ok && state.completed {
			delete(b.tasks, taskID)
		}
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
