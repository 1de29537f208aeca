package mcprt

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CallResult is the outcome of one tool call. Payload is always a
// JSON-serializable envelope carrying a "success" field that agrees with OK.
type CallResult struct {
	OK      bool
	Payload any
}

// Text renders the payload as the JSON text sent to the client.
func (c *CallResult) Text() string {
	data, err := json.MarshalIndent(c.Payload, "", "  ")
	if err != nil {
		data, _ = json.Marshal(&Failure{Message: fmt.Sprintf("Failed to encode result: %v", err)})
	}
	return string(data)
}

// ToolResult converts the result to a single-text MCP tool result.
// Failures are flagged with isError but keep the JSON envelope as text.
func (c *CallResult) ToolResult() *mcp.CallToolResult {
	if c.OK {
		return mcp.NewToolResultText(c.Text())
	}
	return mcp.NewToolResultError(c.Text())
}
