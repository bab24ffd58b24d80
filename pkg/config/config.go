// Package config loads and validates taskweave configuration.
//
// Configuration comes from a single YAML file (taskweave.yaml) merged over
// built-in defaults, with {{.ENV_VAR}} template expansion applied to the raw
// file before parsing. Durations are expressed as millisecond integers in
// YAML (the *_ms keys) and surfaced as time.Duration through accessor methods.
package config

import "time"

// Config is the umbrella configuration object returned by Load() and used
// throughout the application.
type Config struct {
	configPath string // Source file path (for reference)

	Server     *ServerConfig     `yaml:"server"`
	Planner    *PlannerConfig    `yaml:"planner"`
	Classifier *ClassifierConfig `yaml:"classifier"`
	MultiAgent *MultiAgentConfig `yaml:"multi_agent"`
	Progress   *ProgressConfig   `yaml:"progress"`
	Transport  *TransportConfig  `yaml:"transport"`
	LLM        *LLMConfig        `yaml:"llm"`
	Tool       *ToolConfig       `yaml:"tool"`
	Context    *ContextConfig    `yaml:"context"`
	Queue      *QueueConfig      `yaml:"queue"`

	// MCPServers maps server ID to connection settings. Tools exposed by
	// these servers are registered into the tool registry at startup.
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers"`

	Notifications *NotificationsConfig `yaml:"notifications"`
}

// ConfigPath returns the path the configuration was loaded from
// (empty when running on pure defaults).
func (c *Config) ConfigPath() string {
	return c.configPath
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// PlannerConfig controls task decomposition.
type PlannerConfig struct {
	// MaxSteps caps the number of steps the planner may emit.
	MaxSteps int `yaml:"max_steps"`
}

// ClassifierConfig controls the deterministic step classifier.
type ClassifierConfig struct {
	// ToolKeywords is the verb set whose presence marks a step as a tool step.
	ToolKeywords []string `yaml:"tool_keywords"`
}

// MultiAgentConfig holds the complexity thresholds for strategy selection.
type MultiAgentConfig struct {
	// SingleMax is the upper complexity bound (inclusive) for single-agent mode.
	SingleMax float64 `yaml:"single_max"`
	// ParallelMin is the lower complexity bound (inclusive) for parallel mode.
	ParallelMin float64 `yaml:"parallel_min"`
}

// ProgressConfig controls per-subscriber delivery and broadcaster state.
type ProgressConfig struct {
	// OutboxCapacity is the bounded per-subscriber outbox size.
	OutboxCapacity int `yaml:"outbox_capacity"`
	// TerminalEnqueueTimeoutMS bounds the blocking enqueue of terminal frames.
	TerminalEnqueueTimeoutMS int `yaml:"terminal_enqueue_timeout_ms"`
	// GracePeriodMS is how long per-task broadcaster state survives a terminal
	// event, so late subscribers can still observe the terminal frame.
	GracePeriodMS int `yaml:"grace_period_ms"`
}

// TerminalEnqueueTimeout returns TerminalEnqueueTimeoutMS as a duration.
func (c *ProgressConfig) TerminalEnqueueTimeout() time.Duration {
	return time.Duration(c.TerminalEnqueueTimeoutMS) * time.Millisecond
}

// GracePeriod returns GracePeriodMS as a duration.
func (c *ProgressConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMS) * time.Millisecond
}

// TransportConfig controls the push transport (WebSocket) lifecycle.
type TransportConfig struct {
	// HeartbeatIntervalMS is how often a heartbeat frame is sent on an
	// otherwise idle connection.
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	// LivenessDeadlineMS is how long a subscriber may stay silent before it
	// is disconnected with reason "timeout".
	LivenessDeadlineMS int `yaml:"liveness_deadline_ms"`
	// WriteTimeoutMS bounds a single sink write.
	WriteTimeoutMS int `yaml:"write_timeout_ms"`
}

// HeartbeatInterval returns HeartbeatIntervalMS as a duration.
func (c *TransportConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// LivenessDeadline returns LivenessDeadlineMS as a duration.
func (c *TransportConfig) LivenessDeadline() time.Duration {
	return time.Duration(c.LivenessDeadlineMS) * time.Millisecond
}

// WriteTimeout returns WriteTimeoutMS as a duration.
func (c *TransportConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// LLMConfig holds provider access settings plus the per-call deadline.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	// Temperature is optional; nil leaves the provider default.
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens"`
	// CallTimeoutMS is the per-call deadline; exceeding it surfaces as llm_failed.
	CallTimeoutMS int `yaml:"call_timeout_ms"`
}

// CallTimeout returns CallTimeoutMS as a duration.
func (c *LLMConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// ToolConfig holds tool invocation settings.
type ToolConfig struct {
	// CallTimeoutMS is the per-tool-call deadline; exceeding it surfaces as
	// tool_execution_failed.
	CallTimeoutMS int `yaml:"call_timeout_ms"`
}

// CallTimeout returns CallTimeoutMS as a duration.
func (c *ToolConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// ContextConfig controls rolling context accumulation for generic steps.
type ContextConfig struct {
	// CharBudget caps the accumulated context passed to generic steps.
	// Overflow is truncated from the head (oldest first).
	CharBudget int `yaml:"char_budget"`
}

// QueueConfig contains the in-memory submission queue and worker pool settings.
type QueueConfig struct {
	// WorkerCount is the number of workflow worker goroutines.
	WorkerCount int `yaml:"worker_count"`
	// Capacity is the bounded submission queue size. Submissions beyond it
	// are rejected with 503 at the API.
	Capacity int `yaml:"capacity"`
	// WorkflowTimeoutMS bounds a single workflow execution (0 = unbounded).
	WorkflowTimeoutMS int `yaml:"workflow_timeout_ms"`
	// GracefulShutdownTimeoutMS is the max time to wait for in-flight
	// workflows during shutdown.
	GracefulShutdownTimeoutMS int `yaml:"graceful_shutdown_timeout_ms"`
}

// WorkflowTimeout returns WorkflowTimeoutMS as a duration.
func (c *QueueConfig) WorkflowTimeout() time.Duration {
	return time.Duration(c.WorkflowTimeoutMS) * time.Millisecond
}

// GracefulShutdownTimeout returns GracefulShutdownTimeoutMS as a duration.
func (c *QueueConfig) GracefulShutdownTimeout() time.Duration {
	return time.Duration(c.GracefulShutdownTimeoutMS) * time.Millisecond
}

// TransportType identifies how an MCP server is reached.
type TransportType string

// Supported MCP transport types.
const (
	TransportTypeStdio TransportType = "stdio"
	TransportTypeHTTP  TransportType = "http"
)

// MCPServerConfig describes one MCP server whose tools are surfaced through
// the tool registry.
type MCPServerConfig struct {
	Transport TransportType     `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"` // stdio
	Args      []string          `yaml:"args,omitempty"`    // stdio
	Env       map[string]string `yaml:"env,omitempty"`     // stdio
	URL       string            `yaml:"url,omitempty"`     // http
}

// NotificationsConfig groups outbound notification settings.
type NotificationsConfig struct {
	Slack *SlackConfig `yaml:"slack,omitempty"`
}

// SlackConfig holds Slack terminal-event notification settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"` // Defaults to "SLACK_BOT_TOKEN" if omitted
	Channel  string `yaml:"channel,omitempty"`
}
