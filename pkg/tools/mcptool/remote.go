package mcptool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskweave/taskweave/pkg/tools"
)

// remoteTool adapts one MCP server tool to the registry Tool interface.
type remoteTool struct {
	connector   *Connector
	serverID    string
	toolName    string
	name        string
	description string
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.description }

// Execute forwards the call to the MCP server. The ctx deadline is applied
// by the caller; transport failures map to unavailable, server-reported
// errors to execution_failed.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	session := t.connector.session(t.serverID)
	if session == nil {
		return tools.Fail(tools.ErrorKindUnavailable,
			fmt.Sprintf("no session for MCP server %q", t.serverID))
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return tools.Fail(tools.ErrorKindUnavailable,
			fmt.Sprintf("MCP call %s.%s: %s", t.serverID, t.toolName, err))
	}

	content := extractTextContent(result)
	if result.IsError {
		return tools.Fail(tools.ErrorKindExecutionFailed, content)
	}
	return tools.Succeed(content)
}

// extractTextContent concatenates all TextContent items. Non-text content
// (images, embedded resources) is logged at debug level and skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}
