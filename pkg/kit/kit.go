// Package kit holds the endpoint plumbing shared by the tool registry,
// the audit middleware and the SQL tracer.
package kit

import "context"

// Endpoint handles one decoded tool request.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is outermost.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	traceIDKey
)

func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// GetTransport returns the transport name stored in ctx, or "" if none.
func GetTransport(ctx context.Context) string {
	v, _ := ctx.Value(transportKey).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithTraceID tags ctx so that every SQL statement run on behalf of the
// same tool call can be correlated in sql_traces.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
