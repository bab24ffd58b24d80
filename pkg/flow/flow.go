package flow

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
	"github.com/taskweave/taskweave/pkg/workflow"
)

// Coarse user-facing stage labels with their progress values.
const (
	stageInit      = "Inicializando análise da tarefa"      // 5
	stageAnalyze   = "Analisando complexidade e requisitos" // 15
	stageSelect    = "Selecionando agentes necessários"     // 25
	stageExecuting = "Executando"                           // 40 / 55 / 65
	stageFinalize  = "Finalizando execução"                 // 85
	stageResults   = "Processando resultados"               // 95
)

// executionProgress maps the chosen strategy to the Executando stage value.
var executionProgress = map[events.ExecutionType]float64{
	events.ExecutionTypeSingle:     40,
	events.ExecutionTypeSequential: 55,
	events.ExecutionTypeParallel:   65,
}

// Flow drives the multi-agent lifecycle:
// init → analyze → select → execute → results → done|failed.
// The mcp execution type is a reserved label for delegating whole tasks to
// an external protocol agent; no strategy selects it here.
type Flow struct {
	planner     *planner.Planner
	runner      *workflow.StepRunner
	analyzer    *ComplexityAnalyzer
	store       *workflow.Store
	broadcaster *events.Broadcaster
	submitter   workflow.Submitter

	singleMax   float64
	parallelMin float64
	contextCfg  *config.ContextConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	logger *slog.Logger
}

// New creates a Flow sharing the planner, runner and store with the
// workflow engine.
func New(p *planner.Planner, runner *workflow.StepRunner, analyzer *ComplexityAnalyzer, store *workflow.Store, broadcaster *events.Broadcaster, multiCfg *config.MultiAgentConfig, contextCfg *config.ContextConfig) *Flow {
	return &Flow{
		planner:     p,
		runner:      runner,
		analyzer:    analyzer,
		store:       store,
		broadcaster: broadcaster,
		singleMax:   multiCfg.SingleMax,
		parallelMin: multiCfg.ParallelMin,
		contextCfg:  contextCfg,
		cancels:     make(map[string]context.CancelFunc),
		logger:      slog.With("component", "flow"),
	}
}

// SetSubmitter wires the background scheduler.
func (f *Flow) SetSubmitter(s workflow.Submitter) { f.submitter = s }

// Start accepts a task for multi-agent execution and schedules it.
func (f *Flow) Start(initialTask string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(initialTask) == "" {
		return "", fmt.Errorf("initial_task must not be empty")
	}

	id := uuid.New().String()
	f.store.Create(&workflow.Workflow{
		ID:          id,
		InitialTask: initialTask,
		Mode:        "multi",
		Metadata:    metadata,
		Status:      workflow.StatusPending,
		StartedAt:   time.Now(),
	})

	if err := f.submitter.Submit(id); err != nil {
		now := time.Now()
		_ = f.store.Update(id, func(w *workflow.Workflow) {
			w.Status = workflow.StatusFailed
			w.ErrorKind = workflow.ErrInternal
			w.ErrorText = err.Error()
			w.CompletedAt = &now
		})
		return "", fmt.Errorf("schedule flow: %w", err)
	}

	f.logger.Info("Multi-agent task accepted", "workflow_id", id)
	return id, nil
}

// Execute runs the full multi-agent lifecycle for one task.
func (f *Flow) Execute(ctx context.Context, workflowID string) {
	status, err := f.store.Status(workflowID)
	if err != nil {
		f.logger.Error("Unknown workflow submitted", "workflow_id", workflowID)
		return
	}
	if status.Terminal() {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancels[workflowID] = cancel
	f.mu.Unlock()
	defer func() {
		cancel()
		f.mu.Lock()
		delete(f.cancels, workflowID)
		f.mu.Unlock()
	}()

	stepCtx := context.WithoutCancel(runCtx)

	var initialTask string
	_ = f.store.Update(workflowID, func(w *workflow.Workflow) {
		w.Status = workflow.StatusRunning
		w.StartedAt = time.Now()
		initialTask = w.InitialTask
	})

	f.broadcaster.BroadcastStarted(workflowID, initialTask, 0)
	f.stage(workflowID, stageInit, 5, "", nil)

	f.stage(workflowID, stageAnalyze, 15, "", nil)
	score := f.analyzer.Score(initialTask)

	f.stage(workflowID, stageSelect, 25, "", nil)

	descriptions, err := f.planner.Decompose(stepCtx, initialTask, nil)
	if err != nil {
		kind := workflow.ErrLLMFailed
		if errors.Is(err, planner.ErrEmptyPlan) {
			kind = workflow.ErrEmptyPlan
		}
		f.fail(workflowID, kind, err.Error())
		return
	}

	// score ≤ single_max delegates to single-step semantics: only the first
	// planned step runs.
	if score <= f.singleMax && len(descriptions) > 1 {
		descriptions = descriptions[:1]
	}

	steps := make([]workflow.Step, len(descriptions))
	for i, desc := range descriptions {
		steps[i] = workflow.Step{Index: i + 1, Description: desc}
		steps[i].Kind = f.runner.Classify(desc)
	}
	_ = f.store.Update(workflowID, func(w *workflow.Workflow) { w.Plan = steps })

	waves := partitionWaves(steps)
	execType := f.selectStrategy(score, waves)

	f.logger.Info("Execution strategy selected",
		"workflow_id", workflowID, "score", score,
		"execution_type", execType, "steps", len(steps), "waves", len(waves))

	f.stage(workflowID, stageExecuting, executionProgress[execType], execType, agentLabels(steps))

	var anyFailed bool
	var failKind workflow.ErrorKind
	var failText string
	if execType == events.ExecutionTypeParallel {
		anyFailed, failKind, failText = f.runWaves(runCtx, stepCtx, workflowID, steps, waves)
	} else {
		anyFailed, failKind, failText = f.runSequential(runCtx, stepCtx, workflowID, steps)
	}
	if failKind != "" {
		f.fail(workflowID, failKind, failText)
		return
	}

	f.stage(workflowID, stageFinalize, 85, execType, nil)
	f.stage(workflowID, stageResults, 95, execType, nil)
	f.complete(workflowID, anyFailed)
}

// Cancel requests cooperative cancellation. Idempotent.
func (f *Flow) Cancel(workflowID string) error {
	status, err := f.store.Status(workflowID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil
	}
	if status == workflow.StatusPending {
		f.fail(workflowID, workflow.ErrCancelled, "cancelled before execution")
		return nil
	}

	f.mu.Lock()
	cancel, ok := f.cancels[workflowID]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// selectStrategy applies the threshold rules to the complexity score.
func (f *Flow) selectStrategy(score float64, waves [][]int) events.ExecutionType {
	switch {
	case score <= f.singleMax:
		return events.ExecutionTypeSingle
	case score >= f.parallelMin && hasParallelism(waves):
		return events.ExecutionTypeParallel
	default:
		return events.ExecutionTypeSequential
	}
}

// runSequential executes steps in plan order, accumulating context.
func (f *Flow) runSequential(runCtx, stepCtx context.Context, workflowID string, steps []workflow.Step) (anyFailed bool, failKind workflow.ErrorKind, failText string) {
	accumulator := workflow.NewContextAccumulator(f.contextCfg)

	for i := range steps {
		if runCtx.Err() != nil {
			return anyFailed, workflow.ErrCancelled, "workflow cancelled"
		}
		step := steps[i]

		f.broadcaster.BroadcastStep(workflowID, step.Index, step.Description,
			events.StepPhaseStarted, false, nil, "", 0)

		result := f.runner.Run(stepCtx, step, accumulator.Context())

		_ = f.store.Update(workflowID, func(w *workflow.Workflow) {
			w.Results = append(w.Results, result)
		})
		if result.Success {
			accumulator.Add(step.Index, step.Description, result.Output)
		} else {
			anyFailed = true
		}

		f.broadcaster.BroadcastStep(workflowID, step.Index, step.Description,
			events.StepPhaseCompleted, result.Success, result.Output,
			string(result.Error), time.Duration(result.DurationMS)*time.Millisecond)

		if result.Error.Fatal() {
			return anyFailed, result.Error, result.ErrorText
		}
	}
	return anyFailed, "", ""
}

// runWaves executes each wave's steps concurrently. A step failure marks
// its result failed without cancelling siblings; a wave in which every step
// failed blocks all subsequent waves with dependency_unavailable.
func (f *Flow) runWaves(runCtx, stepCtx context.Context, workflowID string, steps []workflow.Step, waves [][]int) (anyFailed bool, failKind workflow.ErrorKind, failText string) {
	accumulator := workflow.NewContextAccumulator(f.contextCfg)

	for waveIdx, wave := range waves {
		if runCtx.Err() != nil {
			return anyFailed, workflow.ErrCancelled, "workflow cancelled"
		}

		// All step.started events for the wave precede any completion.
		for _, idx := range wave {
			f.broadcaster.BroadcastStep(workflowID, steps[idx].Index, steps[idx].Description,
				events.StepPhaseStarted, false, nil, "", 0)
		}

		priorContext := accumulator.Context()
		results := make([]workflow.StepResult, len(wave))
		var wg sync.WaitGroup
		for i, idx := range wave {
			wg.Add(1)
			go func(i, idx int) {
				defer wg.Done()
				results[i] = f.runner.Run(stepCtx, steps[idx], priorContext)
			}(i, idx)
		}
		wg.Wait()

		waveSucceeded := false
		for i, idx := range wave {
			result := results[i]
			_ = f.store.Update(workflowID, func(w *workflow.Workflow) {
				w.Results = append(w.Results, result)
			})
			if result.Success {
				waveSucceeded = true
				accumulator.Add(steps[idx].Index, steps[idx].Description, result.Output)
			} else {
				anyFailed = true
			}
			f.broadcaster.BroadcastStep(workflowID, steps[idx].Index, steps[idx].Description,
				events.StepPhaseCompleted, result.Success, result.Output,
				string(result.Error), time.Duration(result.DurationMS)*time.Millisecond)
		}

		if !waveSucceeded && waveIdx < len(waves)-1 {
			return anyFailed, workflow.ErrDependencyUnavailable,
				fmt.Sprintf("no step in wave %d succeeded", waveIdx+1)
		}
	}
	return anyFailed, "", ""
}

func (f *Flow) stage(workflowID, label string, progress float64, execType events.ExecutionType, agents []string) {
	f.broadcaster.BroadcastProgress(workflowID, label, progress, execType, agents)
}

func (f *Flow) fail(workflowID string, kind workflow.ErrorKind, text string) {
	now := time.Now()
	updated := false
	var partial []workflow.StepResult
	_ = f.store.Update(workflowID, func(w *workflow.Workflow) {
		if w.Status.Terminal() {
			return
		}
		w.Status = workflow.StatusFailed
		w.ErrorKind = kind
		w.ErrorText = text
		w.CompletedAt = &now
		partial = append([]workflow.StepResult(nil), w.Results...)
		updated = true
	})
	if !updated {
		return
	}
	f.logger.Warn("Multi-agent task failed",
		"workflow_id", workflowID, "error_kind", kind, "error", text)
	var partialResults any
	if len(partial) > 0 {
		partialResults = partial
	}
	f.broadcaster.BroadcastFailed(workflowID, string(kind), text, partialResults)
}

func (f *Flow) complete(workflowID string, anyFailed bool) {
	now := time.Now()
	var total, succeeded int
	var failedSteps []string
	_ = f.store.Update(workflowID, func(w *workflow.Workflow) {
		if w.Status.Terminal() {
			return
		}
		if anyFailed {
			w.Status = workflow.StatusPartialSuccess
		} else {
			w.Status = workflow.StatusCompleted
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

	status := workflow.StatusCompleted
	note := ""
	if anyFailed {
		status = workflow.StatusPartialSuccess
		note = "failed: " + strings.Join(failedSteps, ", ")
	}
	summary := fmt.Sprintf("%d of %d steps completed successfully", succeeded, total)
	f.broadcaster.BroadcastCompleted(workflowID, string(status), summary, note)
	f.logger.Info("Multi-agent task finished",
		"workflow_id", workflowID, "status", status, "succeeded", succeeded, "total", total)
}

// agentLabels derives the active agent set from the step kinds.
func agentLabels(steps []workflow.Step) []string {
	var hasTool, hasGeneric bool
	for _, step := range steps {
		switch step.Kind {
		case workflow.StepKindTool:
			hasTool = true
		case workflow.StepKindGeneric:
			hasGeneric = true
		}
	}
	var labels []string
	if hasTool {
		labels = append(labels, "tool-agent")
	}
	if hasGeneric {
		labels = append(labels, "generic-agent")
	}
	return labels
}
