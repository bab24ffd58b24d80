// Package api exposes the HTTP surface: workflow submission, snapshots,
// cancellation, health, and the WebSocket push endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/events"
	"github.com/taskweave/taskweave/pkg/flow"
	"github.com/taskweave/taskweave/pkg/queue"
	"github.com/taskweave/taskweave/pkg/workflow"
)

// Server is the HTTP server over the workflow engine and the multi-agent
// flow. Cancellation is routed by the workflow's mode.
type Server struct {
	cfg         *config.ServerConfig
	engine      *workflow.Engine
	flow        *flow.Flow
	store       *workflow.Store
	pool        *queue.Pool
	connManager *events.ConnectionManager

	echo       *echo.Echo
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg *config.ServerConfig, engine *workflow.Engine, fl *flow.Flow, store *workflow.Store, pool *queue.Pool, connManager *events.ConnectionManager) *Server {
	s := &Server{
		cfg:         cfg,
		engine:      engine,
		flow:        fl,
		store:       store,
		pool:        pool,
		connManager: connManager,
		echo:        echo.New(),
		logger:      slog.With("component", "api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())

	s.echo.GET("/workflows/health", s.healthHandler)
	s.echo.POST("/workflows/simple", s.submitSimpleHandler)
	s.echo.POST("/workflows/multi", s.submitMultiHandler)
	s.echo.GET("/workflows/:id", s.getWorkflowHandler)
	s.echo.POST("/workflows/:id/cancel", s.cancelWorkflowHandler)

	s.echo.GET("/ws/:client_id", s.wsHandler)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving on the given address. Blocks until the listener
// closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
