package events

// ExecutionType describes how the multi-agent flow runs a task.
type ExecutionType string

// Execution types set by the multi-agent flow.
const (
	ExecutionTypeSingle     ExecutionType = "single"
	ExecutionTypeSequential ExecutionType = "sequential"
	ExecutionTypeParallel   ExecutionType = "parallel"
	ExecutionTypeMCP        ExecutionType = "mcp"
)

// ProgressUpdate is the payload for progress frames.
type ProgressUpdate struct {
	TaskID        string        `json:"task_id"`
	Stage         string        `json:"stage"`
	Progress      float64       `json:"progress"` // [0.0, 100.0]
	ExecutionType ExecutionType `json:"execution_type,omitempty"`
	Agents        []string      `json:"agents,omitempty"`
	Timestamp     string        `json:"timestamp"` // RFC3339
}

// WorkflowStartedPayload is the payload for workflow.started frames.
type WorkflowStartedPayload struct {
	WorkflowID     string `json:"workflow_id"`
	Task           string `json:"task"`
	EstimatedSteps int    `json:"estimated_steps"`
	Timestamp      string `json:"timestamp"`
}

// StepStartedPayload is the payload for workflow.step.started frames.
type StepStartedPayload struct {
	WorkflowID  string `json:"workflow_id"`
	StepIndex   int    `json:"step_index"` // 1-based
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// StepCompletedPayload is the payload for workflow.step.completed frames.
// Exactly one of Result / Error is populated.
type StepCompletedPayload struct {
	WorkflowID  string `json:"workflow_id"`
	StepIndex   int    `json:"step_index"` // 1-based
	Description string `json:"description"`
	Success     bool   `json:"success"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Timestamp   string `json:"timestamp"`
}

// WorkflowCompletedPayload is the payload for workflow.completed frames.
// Status is "completed" or "partial_success"; Progress is always 100.
type WorkflowCompletedPayload struct {
	WorkflowID         string  `json:"workflow_id"`
	Status             string  `json:"status"`
	Summary            string  `json:"summary"`
	Progress           float64 `json:"progress"`
	PartialResultsNote string  `json:"partial_results_note,omitempty"`
	Timestamp          string  `json:"timestamp"`
}

// WorkflowFailedPayload is the payload for workflow.failed frames.
// PartialResults carries the step results recorded before the fatal error,
// when any exist.
type WorkflowFailedPayload struct {
	WorkflowID     string `json:"workflow_id"`
	ErrorKind      string `json:"error_kind"`
	Message        string `json:"message"`
	PartialResults any    `json:"partial_results,omitempty"`
	Timestamp      string `json:"timestamp"`
}
