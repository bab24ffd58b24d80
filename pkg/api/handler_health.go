package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskweave/taskweave/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only in-process components are checked; the LLM provider and MCP
// servers are excluded so an external outage cannot fail liveness.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.pool != nil {
		poolHealth := s.pool.Health()
		if poolHealth.TotalWorkers == 0 {
			status = healthStatusDegraded
			checks["worker_pool"] = HealthCheck{
				Status:  healthStatusDegraded,
				Message: "no workers running",
			}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.connManager != nil {
		checks["push"] = HealthCheck{Status: healthStatusHealthy}
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
