package api

import (
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/taskweave/taskweave/pkg/queue"
	"github.com/taskweave/taskweave/pkg/workflow"
)

// submitSimpleHandler handles POST /workflows/simple.
// Creates a pending workflow and returns 202 immediately; planning and
// execution failures surface on the push channel and the snapshot
// endpoint.
func (s *Server) submitSimpleHandler(c *echo.Context) error {
	req, err := bindSubmitRequest(c)
	if err != nil {
		return err
	}

	id, err := s.engine.StartSimple(req.InitialTask, req.Metadata)
	if err != nil {
		return mapSubmitError(err)
	}

	return c.JSON(http.StatusAccepted, &WorkflowAcceptedResponse{
		WorkflowID: id,
		Status:     "accepted",
	})
}

// submitMultiHandler handles POST /workflows/multi.
func (s *Server) submitMultiHandler(c *echo.Context) error {
	req, err := bindSubmitRequest(c)
	if err != nil {
		return err
	}

	id, err := s.flow.Start(req.InitialTask, req.Metadata)
	if err != nil {
		return mapSubmitError(err)
	}

	return c.JSON(http.StatusAccepted, &WorkflowAcceptedResponse{
		WorkflowID: id,
		Status:     "accepted",
	})
}

// getWorkflowHandler handles GET /workflows/:id.
func (s *Server) getWorkflowHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow id is required")
	}

	snapshot, err := s.store.Snapshot(id)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, snapshot)
}

// cancelWorkflowHandler handles POST /workflows/:id/cancel.
// Idempotent: cancelling a terminal workflow still returns 202. The
// request is routed to the engine or the flow by the workflow's mode.
func (s *Server) cancelWorkflowHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow id is required")
	}

	snapshot, err := s.store.Snapshot(id)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if snapshot.Mode == "multi" {
		err = s.flow.Cancel(id)
	} else {
		err = s.engine.Cancel(id)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusAccepted, &WorkflowAcceptedResponse{
		WorkflowID: id,
		Status:     "cancelling",
	})
}

func bindSubmitRequest(c *echo.Context) (*SubmitWorkflowRequest, error) {
	var req SubmitWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.InitialTask) == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "initial_task field is required")
	}
	return &req, nil
}

// mapSubmitError converts submission failures into HTTP errors.
// A full queue is backpressure, not a client fault.
func mapSubmitError(err error) error {
	if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrPoolStopped) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "queue is full, retry later")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
