package notify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/workflow"
)

// defaultTokenEnv is the environment variable consulted when
// notifications.slack.token_env is not set.
const defaultTokenEnv = "SLACK_BOT_TOKEN"

// Service sends terminal workflow notifications to Slack. It implements
// workflow.Notifier. Nil-safe: all methods are no-ops when the service is
// nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a Service from configuration. Returns nil when Slack
// notifications are disabled, the channel is missing, or the token
// environment variable is empty.
func NewService(cfg *config.SlackConfig) *Service {
	if cfg == nil || !cfg.Enabled || cfg.Channel == "" {
		return nil
	}

	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = defaultTokenEnv
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		slog.Warn("Slack notifications enabled but token env var is empty, disabling",
			"token_env", tokenEnv)
		return nil
	}

	return &Service{
		client: NewClient(token, cfg.Channel),
		logger: slog.With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.With("component", "slack-service"),
	}
}

// WorkflowFinished implements workflow.Notifier. Fail-open: delivery
// errors are logged, never propagated to the engine.
func (s *Service) WorkflowFinished(snapshot workflow.Snapshot) {
	if s == nil {
		return
	}

	blocks := BuildTerminalMessage(snapshot)
	if err := s.client.PostMessage(context.Background(), blocks, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack notification",
			"workflow_id", snapshot.WorkflowID,
			"status", snapshot.Status,
			"error", err)
	}
}
