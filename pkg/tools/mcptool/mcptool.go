// Package mcptool surfaces tools hosted on MCP (Model Context Protocol)
// servers through the tool registry. Each remote tool becomes a regular
// registry entry; the workflow layer never sees MCP.
package mcptool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/tools"
	"github.com/taskweave/taskweave/pkg/version"
)

// Connector manages MCP SDK sessions for the configured servers and
// registers their tools. Thread-safe: sessions may be used from multiple
// workflow workers at once.
type Connector struct {
	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession
	failedServers map[string]string

	logger *slog.Logger
}

// NewConnector creates an empty Connector.
func NewConnector() *Connector {
	return &Connector{
		sessions:      make(map[string]*mcpsdk.ClientSession),
		failedServers: make(map[string]string),
		logger:        slog.With("component", "mcptool"),
	}
}

// Connect establishes sessions to all configured servers. A server that
// fails to connect is recorded and skipped; tools from the servers that did
// connect remain available.
func (c *Connector) Connect(ctx context.Context, servers map[string]config.MCPServerConfig) {
	for serverID, serverCfg := range servers {
		if err := c.connectServer(ctx, serverID, serverCfg); err != nil {
			c.mu.Lock()
			c.failedServers[serverID] = err.Error()
			c.mu.Unlock()
			c.logger.Warn("MCP server failed to connect", "server", serverID, "error", err)
		}
	}
}

func (c *Connector) connectServer(ctx context.Context, serverID string, cfg config.MCPServerConfig) error {
	transport, err := createTransport(cfg)
	if err != nil {
		return fmt.Errorf("create transport for %q: %w", serverID, err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer so a stdio child
		// process is not leaked on a failed handshake.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("connect to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	delete(c.failedServers, serverID)
	c.mu.Unlock()

	c.logger.Info("MCP server connected", "server", serverID)
	return nil
}

// createTransport builds an MCP SDK transport from server config.
func createTransport(cfg config.MCPServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case config.TransportTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires command")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case config.TransportTypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("http transport requires url")
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}

// RegisterTools lists tools from every connected server and registers each
// one into the registry under "<server>.<tool>". Returns the number of tools
// registered.
func (c *Connector) RegisterTools(ctx context.Context, registry *tools.Registry) (int, error) {
	c.mu.RLock()
	serverIDs := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		serverIDs = append(serverIDs, id)
	}
	c.mu.RUnlock()

	registered := 0
	var lastErr error
	for _, serverID := range serverIDs {
		session := c.session(serverID)
		if session == nil {
			continue
		}
		result, err := session.ListTools(ctx, nil)
		if err != nil {
			lastErr = err
			c.logger.Warn("Failed to list tools from MCP server", "server", serverID, "error", err)
			continue
		}
		for _, tool := range result.Tools {
			name := fmt.Sprintf("%s.%s", serverID, tool.Name)
			if err := registry.Register(name, &remoteTool{
				connector:   c,
				serverID:    serverID,
				toolName:    tool.Name,
				name:        name,
				description: tool.Description,
			}); err != nil {
				return registered, fmt.Errorf("register %q: %w", name, err)
			}
			registered++
		}
	}

	if registered == 0 && lastErr != nil {
		return 0, fmt.Errorf("no MCP tools registered: %w", lastErr)
	}
	return registered, nil
}

// FailedServers returns servers that could not be connected, keyed by ID.
func (c *Connector) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		out[k] = v
	}
	return out
}

// Close shuts down all sessions and their transports.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}

func (c *Connector) session(serverID string) *mcpsdk.ClientSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[serverID]
}

// injectSession wires a pre-connected session. Test hook: lets in-memory MCP
// servers bypass the transport creation path.
func (c *Connector) injectSession(serverID string, session *mcpsdk.ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[serverID] = session
}
