package mcprt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
)

// Registry is the fixed set of tools a server exposes. It is built once at
// startup and only read afterwards, so it needs no locking.
type Registry struct {
	tools  map[string]*registered
	order  []string
	logger *slog.Logger
}

type registered struct {
	tool     *Tool
	endpoint kit.Endpoint
}

type Option func(*options)

type options struct {
	logger     *slog.Logger
	middleware MiddlewareFactory
}

// WithLogger sets the registry logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMiddleware wraps every tool endpoint with the middleware built for it.
func WithMiddleware(f MiddlewareFactory) Option {
	return func(o *options) { o.middleware = f }
}

func NewRegistry(tools []*Tool, opts ...Option) (*Registry, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		tools:  make(map[string]*registered, len(tools)),
		logger: o.logger.With("component", "registry"),
	}
	for _, t := range tools {
		if t.Name == "" || t.Endpoint == nil {
			return nil, fmt.Errorf("tool %q: name and endpoint are required", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		ep := t.Endpoint
		if o.middleware != nil {
			ep = o.middleware(t.Name)(ep)
		}
		r.tools[t.Name] = &registered{tool: t, endpoint: ep}
		r.order = append(r.order, t.Name)
	}
	r.logger.Info("tools registered", "count", len(r.order))
	return r, nil
}

// Tools returns the descriptors in registration order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Call dispatches one tool call. It never returns an error and never
// panics: unknown tools, invalid arguments, handler errors and handler
// panics all come back as failure results.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (res *CallResult) {
	start := time.Now()
	log := r.logger.With("tool", name, "request_id", kit.GetRequestID(ctx))

	reg, ok := r.tools[name]
	if !ok {
		log.Warn("tool not implemented")
		return failed("Tool '%s' not implemented by this server.", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(reg.tool.Params, args); err != nil {
		log.Warn("invalid arguments", "error", err)
		return failed("Invalid arguments for tool '%s': %v", name, err)
	}

	var request any = args
	if reg.tool.Decode != nil {
		decoded, err := reg.tool.Decode(args)
		if err != nil {
			log.Warn("invalid arguments", "error", err)
			return failed("Invalid arguments for tool '%s': %v", name, err)
		}
		request = decoded
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
			res = failed("Failed to execute tool '%s': %v", name, p)
		}
	}()

	resp, err := reg.endpoint(ctx, request)
	if err != nil {
		log.Error("tool failed", "error", err, "duration", time.Since(start))
		return failed("Failed to execute tool '%s': %v", name, err)
	}

	res = &CallResult{OK: true, Payload: resp}
	if o, ok := resp.(Outcome); ok && !o.OK() {
		res.OK = false
	}
	log.Info("tool executed", "ok", res.OK, "duration", time.Since(start))
	return res
}

func failed(format string, a ...any) *CallResult {
	return &CallResult{Payload: &Failure{Message: fmt.Sprintf(format, a...)}}
}

func validateArgs(params []Param, args map[string]any) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return fmt.Errorf("missing required param: %s", p.Name)
			}
			continue
		}
		if !hasType(v, p.Type) {
			return fmt.Errorf("param %s must be of type %s", p.Name, p.Type)
		}
	}
	return nil
}

func hasType(v any, t ParamType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
