// Package bridge is the client side of the tool server: it launches the
// server as a subprocess, performs the MCP handshake and forwards tool calls
// one at a time.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrClosed is returned by every call once the session is closed.
	ErrClosed = errors.New("bridge: connection closed")
	// ErrNotReady is returned when a call is attempted before Start.
	ErrNotReady = errors.New("bridge: session not ready")
)

type State int

const (
	StateNotStarted State = iota
	StateHandshaking
	StateReady
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config says how to launch the server process.
type Config struct {
	Command string
	Args    []string
	Env     []string

	ClientName    string
	ClientVersion string

	// Stderr receives the server's stderr. Nil discards it.
	Stderr io.Writer
}

// ServerInfo is what the server announced during the handshake.
type ServerInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
	Tools           bool
}

// Session is one client connection to one server subprocess.
//
// Calls are serialized: a second CallTool waits for the first to finish.
// Once the subprocess exits or its streams close, the session is Closed for
// good and nothing is retried.
type Session struct {
	cfg    Config
	logger *slog.Logger

	callMu sync.Mutex

	mu     sync.Mutex
	state  State
	client *client.Client
	info   ServerInfo
	tools  []mcp.Tool
	gone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func New(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "sqlmcp-bridge"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "0.1.0"
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "bridge"),
		gone:   make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ServerInfo() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Tools returns the tools discovered during Start.
func (s *Session) Tools() []mcp.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Start launches the server, runs the handshake and lists its tools.
// Any failure leaves the session Closed.
func (s *Session) Start(ctx context.Context) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return fmt.Errorf("bridge: already started (%s)", s.state)
	}
	s.state = StateHandshaking
	s.mu.Unlock()

	s.logger.Info("launching server", "command", s.cfg.Command, "args", s.cfg.Args)
	c, err := client.NewStdioMCPClient(s.cfg.Command, s.cfg.Env, s.cfg.Args...)
	if err != nil {
		s.setClosed()
		return fmt.Errorf("starting server: %w", err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	if stderr, ok := client.GetStderr(c); ok {
		go s.drain(stderr)
	}

	callCtx, cancel := s.watch(ctx)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    s.cfg.ClientName,
		Version: s.cfg.ClientVersion,
	}
	res, err := c.Initialize(callCtx, initReq)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("handshake: %w", s.failure(callCtx, err))
	}

	list, err := c.ListTools(callCtx, mcp.ListToolsRequest{})
	if err != nil {
		s.shutdown()
		return fmt.Errorf("listing tools: %w", s.failure(callCtx, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		go s.closeClient()
		return ErrClosed
	}
	s.info = ServerInfo{
		Name:            res.ServerInfo.Name,
		Version:         res.ServerInfo.Version,
		ProtocolVersion: res.ProtocolVersion,
		Tools:           res.Capabilities.Tools != nil,
	}
	s.tools = list.Tools
	s.state = StateReady
	s.logger.Info("session ready",
		"server", s.info.Name,
		"version", s.info.Version,
		"protocol", s.info.ProtocolVersion,
		"tools", len(s.tools),
	)
	return nil
}

// CallTool invokes a tool and returns the text the server produced,
// unmodified. Failure envelopes are text too; only transport problems
// and cancellation come back as errors.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateClosed:
		s.mu.Unlock()
		return "", ErrClosed
	default:
		s.mu.Unlock()
		return "", ErrNotReady
	}
	s.state = StateDispatching
	c := s.client
	s.mu.Unlock()

	callCtx, cancel := s.watch(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(callCtx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", ErrClosed
	}
	if err != nil {
		err = s.failure(callCtx, err)
		if errors.Is(err, ErrClosed) {
			s.state = StateClosed
			go s.closeClient()
			return "", err
		}
		s.state = StateReady
		return "", fmt.Errorf("calling %s: %w", name, err)
	}
	s.state = StateReady
	return resultText(res), nil
}

// Close terminates the server process. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return s.closeClient()
}

func (s *Session) setClosed() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

func (s *Session) shutdown() {
	s.setClosed()
	s.closeClient()
}

func (s *Session) closeClient() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		c := s.client
		s.mu.Unlock()
		if c == nil {
			return
		}
		s.logger.Info("closing session")
		s.closeErr = c.Close()
	})
	return s.closeErr
}

// drain copies the server's stderr until it closes. The server process
// holds stderr open for its whole life, so EOF here means it is gone.
func (s *Session) drain(r io.Reader) {
	w := s.cfg.Stderr
	if w == nil {
		w = io.Discard
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fmt.Fprintln(w, sc.Text())
	}
	close(s.gone)

	s.mu.Lock()
	wasOpen := s.state != StateClosed
	s.state = StateClosed
	s.mu.Unlock()
	if wasOpen {
		s.logger.Warn("server process exited")
	}
	s.closeClient()
}

// watch derives a context cancelled with ErrClosed when the server goes away.
func (s *Session) watch(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-s.gone:
			cancel(ErrClosed)
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel(nil)
	}
}

// failure classifies an error from the client library.
func (s *Session) failure(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	select {
	case <-s.gone:
		return fmt.Errorf("%w: %v", ErrClosed, err)
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
