package mcprt

import "github.com/hazyhaar/sqlmcp/pkg/kit"

// ParamType is the JSON type a tool argument must have.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeObject ParamType = "object"
	TypeArray  ParamType = "array"
)

// Param declares one tool argument. Params are kept in declaration order.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
}

// Decoder turns validated raw arguments into the request value handed to
// the tool's Endpoint.
type Decoder func(args map[string]any) (any, error)

// Tool is a named, schema-described operation. Tools are immutable once
// passed to NewRegistry.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Decode      Decoder
	Endpoint    kit.Endpoint
}

// Outcome is implemented by result envelopes that can carry a
// success=false answer without an error.
type Outcome interface {
	OK() bool
}

// MiddlewareFactory builds the middleware wrapped around one tool's endpoint.
type MiddlewareFactory func(tool string) kit.Middleware

// Failure is the envelope produced by the registry itself when a call
// cannot reach or complete its handler.
type Failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (f *Failure) OK() bool { return false }
