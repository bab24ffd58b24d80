package mcptool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/config"
	"github.com/taskweave/taskweave/pkg/tools"
)

// emptySchema is a minimal valid JSON Schema for test tools.
var emptySchema = &jsonschema.Schema{Type: "object"}

// startTestServer creates an in-memory MCP server with the given tools and
// returns the client side of the transport pair.
func startTestServer(t *testing.T, name string, handlers map[string]mcpsdk.ToolHandler) *mcpsdk.InMemoryTransport {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name: name, Version: "test",
	}, nil)

	for toolName, handler := range handlers {
		server.AddTool(&mcpsdk.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: emptySchema,
		}, handler)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	go func() {
		_ = server.Run(context.Background(), serverTransport)
	}()
	return clientTransport
}

// wireConnector connects a Connector to an in-memory transport.
func wireConnector(t *testing.T, c *Connector, serverID string, transport *mcpsdk.InMemoryTransport) {
	t.Helper()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name: "taskweave-test", Version: "test",
	}, nil)
	session, err := sdkClient.Connect(context.Background(), transport, nil)
	require.NoError(t, err)
	c.injectSession(serverID, session)
}

func TestConnector_RegisterAndExecute(t *testing.T) {
	transport := startTestServer(t, "search", map[string]mcpsdk.ToolHandler{
		"web_search": func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			var parsed map[string]any
			_ = json.Unmarshal(req.Params.Arguments, &parsed)
			query, _ := parsed["query"].(string)
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "results for " + query}},
			}, nil
		},
	})

	connector := NewConnector()
	wireConnector(t, connector, "search", transport)
	t.Cleanup(func() { _ = connector.Close() })

	registry := tools.NewRegistry()
	n, err := connector.RegisterTools(context.Background(), registry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tool, err := registry.Get("search.web_search")
	require.NoError(t, err)

	result := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	require.True(t, result.Success)
	assert.Equal(t, "results for golang", result.Output)
}

func TestConnector_ServerReportedError(t *testing.T) {
	transport := startTestServer(t, "flaky", map[string]mcpsdk.ToolHandler{
		"always_fails": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "backend exploded"}},
				IsError: true,
			}, nil
		},
	})

	connector := NewConnector()
	wireConnector(t, connector, "flaky", transport)
	t.Cleanup(func() { _ = connector.Close() })

	registry := tools.NewRegistry()
	_, err := connector.RegisterTools(context.Background(), registry)
	require.NoError(t, err)

	tool, err := registry.Get("flaky.always_fails")
	require.NoError(t, err)

	result := tool.Execute(context.Background(), map[string]any{})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, tools.ErrorKindExecutionFailed, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "backend exploded")
}

func TestConnector_MultiServerNamespacing(t *testing.T) {
	searchTransport := startTestServer(t, "search", map[string]mcpsdk.ToolHandler{
		"query": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "from search"}},
			}, nil
		},
	})
	dbTransport := startTestServer(t, "db", map[string]mcpsdk.ToolHandler{
		"query": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "from db"}},
			}, nil
		},
	})

	connector := NewConnector()
	wireConnector(t, connector, "search", searchTransport)
	wireConnector(t, connector, "db", dbTransport)
	t.Cleanup(func() { _ = connector.Close() })

	registry := tools.NewRegistry()
	n, err := connector.RegisterTools(context.Background(), registry)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"db.query", "search.query"}, registry.List())

	tool, err := registry.Get("db.query")
	require.NoError(t, err)
	result := tool.Execute(context.Background(), map[string]any{})
	require.True(t, result.Success)
	assert.Equal(t, "from db", result.Output)
}

func TestConnector_FailedServerRecorded(t *testing.T) {
	connector := NewConnector()
	connector.Connect(context.Background(), map[string]config.MCPServerConfig{
		"broken": {Transport: config.TransportTypeStdio, Command: "/nonexistent/mcp-server"},
	})
	t.Cleanup(func() { _ = connector.Close() })

	failed := connector.FailedServers()
	require.Contains(t, failed, "broken")
	assert.NotEmpty(t, failed["broken"])
}

func TestCreateTransport_Validation(t *testing.T) {
	_, err := createTransport(config.MCPServerConfig{Transport: config.TransportTypeStdio})
	assert.Error(t, err)

	_, err = createTransport(config.MCPServerConfig{Transport: config.TransportTypeHTTP})
	assert.Error(t, err)

	_, err = createTransport(config.MCPServerConfig{Transport: "carrier-pigeon"})
	assert.Error(t, err)
}
