package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/pkg/idgen"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
	"github.com/hazyhaar/sqlmcp/pkg/mcprt"
)

// TransportStdio tags the context of every call served over stdio.
const TransportStdio = "mcp_stdio"

// StdioServer runs one MCP session over a pair of byte streams carrying
// newline-delimited JSON-RPC messages.
//
// Messages are handled strictly one at a time, in arrival order. tools/call
// requests go straight to the registry: arguments are decoded with
// json.Number so integers keep full precision, and an unknown tool gets the
// registry's "not implemented" envelope instead of a JSON-RPC error.
// Everything else is handled by the MCPServer.
type StdioServer struct {
	mcp    *server.MCPServer
	reg    *mcprt.Registry
	logger *slog.Logger
}

func NewStdioServer(srv *server.MCPServer, reg *mcprt.Registry, logger *slog.Logger) *StdioServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioServer{mcp: srv, reg: reg, logger: logger.With("component", "stdio")}
}

// Listen serves until in reaches EOF (nil error) or ctx is cancelled.
func (s *StdioServer) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx = kit.WithTransport(ctx, TransportStdio)
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		r := bufio.NewReader(in)
		for {
			line, err := r.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	w := bufio.NewWriter(out)
	s.logger.Info("stdio session started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stdio session cancelled")
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				s.logger.Info("client closed the stream")
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		case line := <-lines:
			if err := s.handle(ctx, w, line); err != nil {
				return err
			}
		}
	}
}

func (s *StdioServer) handle(ctx context.Context, w *bufio.Writer, line []byte) error {
	id := idgen.New()
	ctx = kit.WithTraceID(kit.WithRequestID(ctx, id), id)

	var resp any
	if r := s.toolCall(ctx, line); r != nil {
		resp = r
	} else if msg := s.mcp.HandleMessage(ctx, line); msg != nil {
		resp = msg
	}
	if resp == nil {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return w.Flush()
}

type toolCallRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// toolCall answers a tools/call request. It returns nil for every other
// message, and for calls whose envelope does not parse.
func (s *StdioServer) toolCall(ctx context.Context, line []byte) *rpcResponse {
	var req toolCallRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return nil
	}
	if req.Method != "tools/call" || len(req.ID) == 0 {
		return nil
	}
	return &rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  s.reg.Call(ctx, req.Params.Name, decodeArguments(req.Params.Arguments)).ToolResult(),
	}
}

// decodeArguments reads a tool argument object keeping numbers as
// json.Number. Anything but an object yields nil.
func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil
	}
	return args
}
