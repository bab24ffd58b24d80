// Package workflow contains the orchestration core: step classification,
// executor dispatch, context accumulation and the engine that drives one
// workflow from plan to terminal result.
package workflow

import (
	"time"
)

// Status is the workflow lifecycle state. Terminal statuses are set exactly
// once.
type Status string

// Workflow statuses.
const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusPartialSuccess Status = "partial_success"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartialSuccess:
		return true
	}
	return false
}

// StepKind is the closed set of step variants. Immutable once assigned.
type StepKind string

// Step kinds.
const (
	StepKindTool    StepKind = "tool"
	StepKindGeneric StepKind = "generic"
)

// ErrorKind is the stable error taxonomy surfaced in StepResult.Error and
// terminal events.
type ErrorKind string

// Error kinds.
const (
	ErrToolNotFound          ErrorKind = "tool_not_found"
	ErrToolExecutionFailed   ErrorKind = "tool_execution_failed"
	ErrInvalidArguments      ErrorKind = "invalid_arguments"
	ErrLLMFailed             ErrorKind = "llm_failed"
	ErrClassificationFailed  ErrorKind = "classification_failed"
	ErrCancelled             ErrorKind = "cancelled"
	ErrEmptyPlan             ErrorKind = "empty_plan"
	ErrDependencyUnavailable ErrorKind = "dependency_unavailable"
	ErrInternal              ErrorKind = "internal_error"
)

// Fatal reports whether the error kind short-circuits the workflow.
// llm_failed is fatal only at planning time; the engine handles that case
// before a step result exists, so here it is non-fatal.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrCancelled, ErrEmptyPlan, ErrDependencyUnavailable, ErrInternal:
		return true
	}
	return false
}

// ToolHint is an optional pre-resolved tool call attached to a step by the
// classifier. When present the tool executor skips LLM resolution.
type ToolHint struct {
	Name string
	Args map[string]any
}

// Step is one unit of the plan.
type Step struct {
	Index       int // 1-based
	Description string
	Kind        StepKind
	ToolHint    *ToolHint
}

// StepResult is the outcome of one step. Exactly one of Output / Error is
// populated.
type StepResult struct {
	StepIndex  int       `json:"step_index"`
	Kind       StepKind  `json:"kind"`
	Success    bool      `json:"success"`
	Output     any       `json:"output,omitempty"`
	Error      ErrorKind `json:"error,omitempty"`
	ErrorText  string    `json:"error_text,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Workflow is the record driving one task. Owned exclusively by the engine
// while running; other components read immutable snapshots.
type Workflow struct {
	ID          string
	InitialTask string
	Mode        string // "simple" or "multi"
	Metadata    map[string]any
	Status      Status
	Plan        []Step
	Results     []StepResult
	StartedAt   time.Time
	CompletedAt *time.Time
	ErrorKind   ErrorKind
	ErrorText   string
}

// Snapshot is the read-only projection served by the snapshot endpoint.
type Snapshot struct {
	WorkflowID  string         `json:"workflow_id"`
	Status      Status         `json:"status"`
	Mode        string         `json:"mode,omitempty"`
	InitialTask string         `json:"initial_task"`
	Plan        []string       `json:"plan"`
	Results     []StepResult   `json:"results"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       ErrorKind      `json:"error,omitempty"`
	ErrorText   string         `json:"error_text,omitempty"`
}

// Snapshot builds the read-only projection of the workflow.
func (w *Workflow) Snapshot() Snapshot {
	plan := make([]string, len(w.Plan))
	for i, step := range w.Plan {
		plan[i] = step.Description
	}
	results := make([]StepResult, len(w.Results))
	copy(results, w.Results)

	snap := Snapshot{
		WorkflowID:  w.ID,
		Status:      w.Status,
		Mode:        w.Mode,
		InitialTask: w.InitialTask,
		Plan:        plan,
		Results:     results,
		Metadata:    w.Metadata,
		StartedAt:   w.StartedAt,
		Error:       w.ErrorKind,
		ErrorText:   w.ErrorText,
	}
	if w.CompletedAt != nil {
		completed := *w.CompletedAt
		snap.CompletedAt = &completed
	}
	return snap
}
