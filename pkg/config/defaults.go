package config

// DefaultToolKeywords is the built-in verb set used by the step classifier.
// A step whose description contains any of these tokens is classified as a
// tool step. Overridable via classifier.tool_keywords.
var DefaultToolKeywords = []string{
	"search", "fetch", "download", "upload", "read", "write", "save", "load",
	"query", "insert", "update", "delete", "send", "notify", "deploy",
	"install", "parse", "extract", "convert", "analyze", "transform",
	"generate", "build", "test", "validate", "monitor", "backup", "sync",
	"copy", "scan", "index", "crawl", "compile", "publish", "restart",
	"provision",
}

// DefaultConfig returns the built-in defaults. Load() merges the YAML file
// over this structure, so every field here must hold a usable value.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			ListenAddr: ":8080",
		},
		Planner: &PlannerConfig{
			MaxSteps: 20,
		},
		Classifier: &ClassifierConfig{
			ToolKeywords: DefaultToolKeywords,
		},
		MultiAgent: &MultiAgentConfig{
			SingleMax:   0.33,
			ParallelMin: 0.66,
		},
		Progress: &ProgressConfig{
			OutboxCapacity:           256,
			TerminalEnqueueTimeoutMS: 2000,
			GracePeriodMS:            60000,
		},
		Transport: &TransportConfig{
			HeartbeatIntervalMS: 15000,
			LivenessDeadlineMS:  30000,
			WriteTimeoutMS:      10000,
		},
		LLM: &LLMConfig{
			BaseURL:       "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			Model:         "gpt-4o-mini",
			MaxTokens:     4096,
			CallTimeoutMS: 60000,
		},
		Tool: &ToolConfig{
			CallTimeoutMS: 120000,
		},
		Context: &ContextConfig{
			CharBudget: 4000,
		},
		Queue: &QueueConfig{
			WorkerCount:               5,
			Capacity:                  128,
			WorkflowTimeoutMS:         0,
			GracefulShutdownTimeoutMS: 120000,
		},
		MCPServers: map[string]MCPServerConfig{},
	}
}
