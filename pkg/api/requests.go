package api

// SubmitWorkflowRequest is the body for POST /workflows/simple and
// POST /workflows/multi.
type SubmitWorkflowRequest struct {
	// InitialTask is the natural-language task to execute. Required.
	InitialTask string `json:"initial_task"`
	// Metadata is attached to the workflow record verbatim.
	Metadata map[string]any `json:"metadata,omitempty"`
}
