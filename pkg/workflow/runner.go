package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// StepRunner bundles classification and executor dispatch for one step.
// Shared by the workflow engine and the multi-agent flow so both paths run
// steps identically.
type StepRunner struct {
	classifier *Classifier
	generic    *GenericExecutor
	tool       *ToolExecutor
	logger     *slog.Logger
}

// NewStepRunner creates a StepRunner.
func NewStepRunner(classifier *Classifier, generic *GenericExecutor, tool *ToolExecutor) *StepRunner {
	return &StepRunner{
		classifier: classifier,
		generic:    generic,
		tool:       tool,
		logger:     slog.With("component", "step-runner"),
	}
}

// Classify assigns the step kind. Pure and deterministic.
func (r *StepRunner) Classify(description string) StepKind {
	return r.classifier.Classify(description)
}

// Run executes one classified step. A panic inside an executor or tool is
// converted to an internal_error result instead of tearing down the worker.
func (r *StepRunner) Run(ctx context.Context, step Step, accumulated string) (result StepResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Step execution panicked",
				"step_index", step.Index, "panic", rec)
			result = StepResult{
				StepIndex: step.Index,
				Kind:      step.Kind,
				Error:     ErrInternal,
				ErrorText: fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	switch step.Kind {
	case StepKindTool:
		return r.tool.Execute(ctx, step)
	case StepKindGeneric:
		return r.generic.Execute(ctx, step, accumulated)
	default:
		return StepResult{
			StepIndex: step.Index,
			Kind:      step.Kind,
			Error:     ErrClassificationFailed,
			ErrorText: fmt.Sprintf("unknown step kind %q", step.Kind),
		}
	}
}
