// Taskweave orchestrator server: exposes the HTTP API, runs queue
// workers, and drives workflow execution with real-time progress push.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskweave/taskweave/pkg/api"
	"github.com/taskweave/taskweave/pkg/bus"
	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/events"
	"github.com/taskweave/taskweave/pkg/flow"
	"github.com/taskweave/taskweave/pkg/llm"
	"github.com/taskweave/taskweave/pkg/notify"
	"github.com/taskweave/taskweave/pkg/planner"
	"github.com/taskweave/taskweave/pkg/queue"
	"github.com/taskweave/taskweave/pkg/tools"
	"github.com/taskweave/taskweave/pkg/tools/mcptool"
	"github.com/taskweave/taskweave/pkg/version"
	"github.com/taskweave/taskweave/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// dispatcher routes queue executions to the engine or the multi-agent
// flow by the workflow's mode.
type dispatcher struct {
	store  *workflow.Store
	engine *workflow.Engine
	flow   *flow.Flow
}

func (d *dispatcher) Execute(ctx context.Context, workflowID string) {
	snapshot, err := d.store.Snapshot(workflowID)
	if err != nil {
		slog.Error("Unknown workflow dispatched", "workflow_id", workflowID)
		return
	}
	if snapshot.Mode == "multi" {
		d.flow.Execute(ctx, workflowID)
		return
	}
	d.engine.Execute(ctx, workflowID)
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./config.yaml"),
		"Path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"error", err)
	}

	slog.Info("Starting taskweave",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Event infrastructure
	eventBus := bus.New()
	broadcaster := events.NewBroadcaster(eventBus, cfg.Progress)
	connManager := events.NewConnectionManager(cfg.Progress, cfg.Transport)
	connManager.BindBus(eventBus)

	managerCtx, managerCancel := context.WithCancel(ctx)
	defer managerCancel()
	go connManager.Run(managerCtx)

	// 3. LLM client
	llmClient, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := llmClient.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()
	slog.Info("LLM client initialized", "model", cfg.LLM.Model)

	// 4. Tool registry + MCP-backed tools
	registry := tools.NewRegistry()
	connector := mcptool.NewConnector()
	if len(cfg.MCPServers) > 0 {
		connector.Connect(ctx, cfg.MCPServers)
		if failed := connector.FailedServers(); len(failed) > 0 {
			slog.Warn("Some MCP servers failed to connect", "failed_servers", failed)
		}
		registered, err := connector.RegisterTools(ctx, registry)
		if err != nil {
			slog.Error("No MCP tools could be registered", "error", err)
			os.Exit(1)
		}
		slog.Info("MCP tools registered", "count", registered)
	}
	defer func() {
		if err := connector.Close(); err != nil {
			slog.Error("Error closing MCP connections", "error", err)
		}
	}()

	// 5. Orchestration core
	classifier := workflow.NewClassifier(cfg.Classifier)
	runner := workflow.NewStepRunner(
		classifier,
		workflow.NewGenericExecutor(llmClient),
		workflow.NewToolExecutor(llmClient, registry, cfg.Tool),
	)
	store := workflow.NewStore()
	taskPlanner := planner.New(llmClient, cfg.Planner)

	engine := workflow.NewEngine(taskPlanner, runner, store, broadcaster, cfg.Context)
	multiFlow := flow.New(taskPlanner, runner, flow.NewComplexityAnalyzer(classifier),
		store, broadcaster, cfg.MultiAgent, cfg.Context)

	// 6. Queue pool (executor is the mode dispatcher)
	pool := queue.NewPool(&dispatcher{store: store, engine: engine, flow: multiFlow}, cfg.Queue)
	pool.Start(ctx)
	engine.SetSubmitter(pool)
	multiFlow.SetSubmitter(pool)

	// 7. Optional Slack notifications on terminal states
	if cfg.Notifications != nil {
		if notifier := notify.NewService(cfg.Notifications.Slack); notifier != nil {
			engine.SetNotifier(notifier)
			slog.Info("Slack notifications enabled",
				"channel", cfg.Notifications.Slack.Channel)
		}
	}

	// 8. HTTP server
	server := api.NewServer(cfg.Server, engine, multiFlow, store, pool, connManager)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Taskweave started",
		"workers", cfg.Queue.WorkerCount,
		"mcp_servers", len(cfg.MCPServers))

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop intake, drain workers, close push
	// connections, then stop the HTTP listener.
	pool.Stop()

	connManager.Shutdown()
	managerCancel()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
