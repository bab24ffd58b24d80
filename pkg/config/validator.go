package config

import (
	"fmt"
	"strings"
)

// Validate performs a fail-fast sanity check over the merged configuration.
func Validate(cfg *Config) error {
	if cfg.Planner.MaxSteps < 1 {
		return fmt.Errorf("planner.max_steps must be >= 1, got %d", cfg.Planner.MaxSteps)
	}
	if len(cfg.Classifier.ToolKeywords) == 0 {
		return fmt.Errorf("classifier.tool_keywords must not be empty")
	}
	for _, kw := range cfg.Classifier.ToolKeywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("classifier.tool_keywords contains an empty keyword")
		}
	}

	ma := cfg.MultiAgent
	if ma.SingleMax < 0 || ma.SingleMax > 1 {
		return fmt.Errorf("multi_agent.single_max must be in [0,1], got %v", ma.SingleMax)
	}
	if ma.ParallelMin < 0 || ma.ParallelMin > 1 {
		return fmt.Errorf("multi_agent.parallel_min must be in [0,1], got %v", ma.ParallelMin)
	}
	if ma.SingleMax >= ma.ParallelMin {
		return fmt.Errorf("multi_agent.single_max (%v) must be below multi_agent.parallel_min (%v)",
			ma.SingleMax, ma.ParallelMin)
	}

	if cfg.Progress.OutboxCapacity < 1 {
		return fmt.Errorf("progress.outbox_capacity must be >= 1, got %d", cfg.Progress.OutboxCapacity)
	}
	if cfg.Progress.TerminalEnqueueTimeoutMS < 0 {
		return fmt.Errorf("progress.terminal_enqueue_timeout_ms must be >= 0")
	}

	if cfg.Transport.HeartbeatIntervalMS < 1 {
		return fmt.Errorf("transport.heartbeat_interval_ms must be >= 1")
	}
	if cfg.Transport.LivenessDeadlineMS < cfg.Transport.HeartbeatIntervalMS {
		return fmt.Errorf("transport.liveness_deadline_ms (%d) must be >= transport.heartbeat_interval_ms (%d)",
			cfg.Transport.LivenessDeadlineMS, cfg.Transport.HeartbeatIntervalMS)
	}

	if cfg.Context.CharBudget < 1 {
		return fmt.Errorf("context.char_budget must be >= 1, got %d", cfg.Context.CharBudget)
	}

	if cfg.Queue.WorkerCount < 1 {
		return fmt.Errorf("queue.worker_count must be >= 1, got %d", cfg.Queue.WorkerCount)
	}
	if cfg.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be >= 1, got %d", cfg.Queue.Capacity)
	}

	for id, server := range cfg.MCPServers {
		switch server.Transport {
		case TransportTypeStdio:
			if server.Command == "" {
				return fmt.Errorf("mcp_servers.%s: stdio transport requires command", id)
			}
		case TransportTypeHTTP:
			if server.URL == "" {
				return fmt.Errorf("mcp_servers.%s: http transport requires url", id)
			}
		default:
			return fmt.Errorf("mcp_servers.%s: unsupported transport type %q", id, server.Transport)
		}
	}

	if slack := cfg.Notifications; slack != nil && slack.Slack != nil && slack.Slack.Enabled {
		if slack.Slack.Channel == "" {
			return fmt.Errorf("notifications.slack.channel is required when Slack is enabled")
		}
	}

	return nil
}
