package api

// WorkflowAcceptedResponse is returned for accepted submissions and
// cancellation requests.
type WorkflowAcceptedResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks,omitempty"`
}
