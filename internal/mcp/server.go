// Package mcp serves the database tools over the Model Context Protocol.
package mcp

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/pkg/idgen"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/sqlmcp/internal/db"
	"github.com/hazyhaar/sqlmcp/pkg/audit"
	"github.com/hazyhaar/sqlmcp/pkg/kit"
	"github.com/hazyhaar/sqlmcp/pkg/mcprt"
)

// NewRegistry builds the tool registry over store. When auditLog is non-nil
// every call is recorded in the audit trail.
func NewRegistry(store *db.Store, auditLog audit.Logger, logger *slog.Logger) (*mcprt.Registry, error) {
	return mcprt.NewRegistry(Tools(store),
		mcprt.WithLogger(logger),
		mcprt.WithMiddleware(func(tool string) kit.Middleware {
			if auditLog == nil {
				return requestIDs
			}
			return kit.Chain(requestIDs, audit.Middleware(auditLog, tool))
		}),
	)
}

// requestIDs tags calls that arrive without a request id, such as those
// dispatched by the MCPServer itself rather than the stdio loop.
func requestIDs(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			id := idgen.New()
			ctx = kit.WithTraceID(kit.WithRequestID(ctx, id), id)
		}
		return next(ctx, request)
	}
}

// NewServer creates an MCPServer advertising every tool of reg.
func NewServer(name, version string, reg *mcprt.Registry) *server.MCPServer {
	srv := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	mcprt.Bridge(srv, reg)
	return srv
}
