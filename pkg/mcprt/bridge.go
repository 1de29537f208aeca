package mcprt

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InputSchema renders the tool's params as a JSON schema object.
func (t *Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := []string{}
	for _, p := range t.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// MCPTool converts the descriptor to its mcp-go form.
func (t *Tool) MCPTool() mcp.Tool {
	schemaJSON, _ := json.Marshal(t.InputSchema())
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schemaJSON)
}

// Bridge registers every tool of reg on srv. Each handler answers with the
// registry's JSON envelope and never returns a protocol error.
func Bridge(srv *server.MCPServer, reg *Registry) {
	for _, t := range reg.Tools() {
		toolName := t.Name
		srv.AddTool(t.MCPTool(), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return reg.Call(ctx, toolName, req.GetArguments()).ToolResult(), nil
		})
	}
}
