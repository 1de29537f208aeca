package mcprt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
)

type echoResult struct {
	Success bool   `json:"success"`
	Echo    string `json:"echo,omitempty"`
}

func (e *echoResult) OK() bool { return e.Success }

func testTools() []*Tool {
	return []*Tool{
		{
			Name:        "echo",
			Description: "Echo a word",
			Params: []Param{
				{Name: "word", Type: TypeString, Required: true, Description: "word to echo"},
				{Name: "tags", Type: TypeArray},
			},
			Decode: func(args map[string]any) (any, error) {
				return args["word"].(string), nil
			},
			Endpoint: func(ctx context.Context, req any) (any, error) {
				return &echoResult{Success: true, Echo: req.(string)}, nil
			},
		},
		{
			Name: "refuse",
			Endpoint: func(ctx context.Context, req any) (any, error) {
				return &echoResult{Success: false}, nil
			},
		},
		{
			Name: "explode",
			Endpoint: func(ctx context.Context, req any) (any, error) {
				return nil, errors.New("boom")
			},
		},
		{
			Name: "panic",
			Endpoint: func(ctx context.Context, req any) (any, error) {
				panic("unexpected")
			},
		},
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := NewRegistry(testTools(), opts...)
	require.NoError(t, err)
	return r
}

func decode(t *testing.T, res *CallResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Text()), &m))
	return m
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	tools := testTools()
	tools = append(tools, tools[0])
	_, err := NewRegistry(tools)
	assert.ErrorContains(t, err, "registered twice")

	_, err = NewRegistry([]*Tool{{Name: "x"}})
	assert.ErrorContains(t, err, "endpoint")
}

func TestToolsKeepsOrder(t *testing.T) {
	r := newTestRegistry(t)
	var names []string
	for _, tool := range r.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"echo", "refuse", "explode", "panic"}, names)
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("nope"))
}

func TestCallUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"nope", "", "ECHO", "drop_table"} {
		res := r.Call(context.Background(), name, map[string]any{"x": 1})
		assert.False(t, res.OK)
		m := decode(t, res)
		assert.Equal(t, false, m["success"])
		assert.Equal(t, "Tool '"+name+"' not implemented by this server.", m["message"])
	}
}

func TestCallValidatesArguments(t *testing.T) {
	r := newTestRegistry(t)

	res := r.Call(context.Background(), "echo", nil)
	assert.False(t, res.OK)
	assert.Equal(t, "Invalid arguments for tool 'echo': missing required param: word", decode(t, res)["message"])

	res = r.Call(context.Background(), "echo", map[string]any{"word": 3.0})
	assert.False(t, res.OK)
	assert.Contains(t, decode(t, res)["message"], "param word must be of type string")

	res = r.Call(context.Background(), "echo", map[string]any{"word": "hi", "tags": "x"})
	assert.False(t, res.OK)
	assert.Contains(t, decode(t, res)["message"], "param tags must be of type array")
}

func TestCallSuccessAndFailureEnvelopes(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ok := r.Call(ctx, "echo", map[string]any{"word": "hi", "tags": []any{"a"}})
	assert.True(t, ok.OK)
	assert.Equal(t, map[string]any{"success": true, "echo": "hi"}, decode(t, ok))
	assert.False(t, ok.ToolResult().IsError)

	refused := r.Call(ctx, "refuse", nil)
	assert.False(t, refused.OK)
	assert.True(t, refused.ToolResult().IsError)

	exploded := r.Call(ctx, "explode", nil)
	assert.False(t, exploded.OK)
	assert.Equal(t, "Failed to execute tool 'explode': boom", decode(t, exploded)["message"])

	panicked := r.Call(ctx, "panic", nil)
	assert.False(t, panicked.OK)
	assert.Equal(t, "Failed to execute tool 'panic': unexpected", decode(t, panicked)["message"])
}

func TestMiddlewareWrapsEveryTool(t *testing.T) {
	var seen []string
	r := newTestRegistry(t, WithMiddleware(func(tool string) kit.Middleware {
		return func(next kit.Endpoint) kit.Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				seen = append(seen, tool)
				return next(ctx, req)
			}
		}
	}))

	r.Call(context.Background(), "echo", map[string]any{"word": "a"})
	r.Call(context.Background(), "explode", nil)
	r.Call(context.Background(), "missing", nil)
	assert.Equal(t, []string{"echo", "explode"}, seen)
}

func TestInputSchema(t *testing.T) {
	r := newTestRegistry(t)
	schema := r.Tools()[0].InputSchema()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"word"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "word to echo"}, props["word"])
	assert.Equal(t, map[string]any{"type": "array"}, props["tags"])

	tool := r.Tools()[0].MCPTool()
	assert.Equal(t, "echo", tool.Name)
	assert.Equal(t, "Echo a word", tool.Description)
}
