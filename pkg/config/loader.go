package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, expands {{.ENV_VAR}} templates, merges
// the result over built-in defaults, and validates. A missing file is not an
// error: the defaults are returned (with a log line) so the server can run
// unconfigured in development.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No configuration file found, using defaults", "path", path)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	// File values win over defaults. Non-zero fields from fileCfg overwrite
	// the corresponding default fields.
	if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging config over defaults: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		"path", path,
		"workers", cfg.Queue.WorkerCount,
		"mcp_servers", len(cfg.MCPServers),
		"tool_keywords", len(cfg.Classifier.ToolKeywords))
	return cfg, nil
}
