package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hazyhaar/sqlmcp/internal/bridge"
	"github.com/hazyhaar/sqlmcp/internal/config"
	"github.com/hazyhaar/sqlmcp/internal/db"
	"github.com/hazyhaar/sqlmcp/internal/logging"
	"github.com/hazyhaar/sqlmcp/internal/mcp"
	"github.com/hazyhaar/sqlmcp/pkg/audit"
	"github.com/hazyhaar/sqlmcp/pkg/trace"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "tools":
		err = cmdTools(os.Args[2:])
	case "call":
		err = cmdCall(os.Args[2:])
	case "repl":
		err = cmdREPL(os.Args[2:])
	case "version":
		fmt.Printf("sqlmcp %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "sqlmcp %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sqlmcp - SQLite tools over the Model Context Protocol

Usage:
  sqlmcp serve [--config config.toml] [--db path]
  sqlmcp tools [--config config.toml]
  sqlmcp call <tool> [--args JSON] [--config config.toml]
  sqlmcp repl [--config config.toml]
  sqlmcp version
  sqlmcp help

Commands:
  serve     Serve the database tools over stdio (stdout is the MCP stream)
  tools     Launch a server, handshake and list its tools
  call      Launch a server and call one tool
  repl      Launch a server and call tools line by line: <tool> [json]
  version   Print version
  help      Show this help`)
}

func cmdServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.toml")
	dbPath := fs.String("db", "", "database file (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Log, os.Stderr)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		tracer   *trace.Store
		auditLog audit.Logger
	)
	if cfg.Audit.Enabled {
		telemetry, err := db.OpenTelemetry(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer telemetry.Close()

		sqlAudit := audit.NewSQLiteLogger(telemetry, logger)
		if err := sqlAudit.Init(); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
		defer sqlAudit.Close()
		auditLog = sqlAudit

		tracer = trace.NewStore(telemetry, logger)
	} else {
		tracer = trace.NewStore(nil, logger)
	}
	if err := tracer.Init(); err != nil {
		return fmt.Errorf("trace schema: %w", err)
	}
	defer tracer.Close()

	store, err := db.Open(cfg.Database.Path, db.WithTracer(tracer), db.WithLogger(logger))
	if err != nil {
		return err
	}

	reg, err := mcp.NewRegistry(store, auditLog, logger)
	if err != nil {
		return err
	}
	srv := mcp.NewServer(cfg.Server.Name, cfg.Server.Version, reg)

	logger.Info("serving",
		"name", cfg.Server.Name,
		"version", cfg.Server.Version,
		"database", cfg.Database.Path,
		"audit", cfg.Audit.Enabled,
	)
	err = mcp.NewStdioServer(srv, reg, logger).Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// clientFlags are shared by the subcommands that launch a server.
type clientFlags struct {
	configPath *string
	verbose    *bool
}

func addClientFlags(fs *pflag.FlagSet) clientFlags {
	return clientFlags{
		configPath: fs.String("config", "", "path to config.toml"),
		verbose:    fs.BoolP("verbose", "v", false, "show client logs and the server's stderr"),
	}
}

// startSession launches the configured server and completes the handshake.
func startSession(ctx context.Context, f clientFlags) (*bridge.Session, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, err
	}

	var logOut, serverErr io.Writer = io.Discard, nil
	if *f.verbose {
		logOut, serverErr = os.Stderr, os.Stderr
	}
	logger, _ := logging.New(config.LogConfig{Level: cfg.Log.Level}, logOut)

	command := cfg.Bridge.Command
	if command == "" {
		if command, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
	}
	args := append([]string{}, cfg.Bridge.Args...)
	if *f.configPath != "" && cfg.Bridge.Command == "" {
		args = append(args, "--config", *f.configPath)
	}

	s := bridge.New(bridge.Config{
		Command:       command,
		Args:          args,
		Env:           cfg.Bridge.Env,
		ClientName:    "sqlmcp",
		ClientVersion: version,
		Stderr:        serverErr,
	}, logger)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func cmdTools(args []string) error {
	fs := pflag.NewFlagSet("tools", pflag.ContinueOnError)
	f := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	info := s.ServerInfo()
	fmt.Printf("%s %s (protocol %s)\n\n", info.Name, info.Version, info.ProtocolVersion)
	for _, t := range s.Tools() {
		fmt.Printf("%-18s %s\n", t.Name, t.Description)
		for _, name := range t.InputSchema.Required {
			fmt.Printf("%-18s   required: %s\n", "", name)
		}
	}
	return nil
}

func cmdCall(args []string) error {
	fs := pflag.NewFlagSet("call", pflag.ContinueOnError)
	f := addClientFlags(fs)
	rawArgs := fs.StringP("args", "a", "", "tool arguments as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one tool name, got %q", strings.Join(fs.Args(), " "))
	}
	toolArgs, err := bridge.ParseArgs(*rawArgs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	text, err := s.CallTool(ctx, fs.Arg(0), toolArgs)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func cmdREPL(args []string) error {
	fs := pflag.NewFlagSet("repl", pflag.ContinueOnError)
	f := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	info := s.ServerInfo()
	fmt.Printf("connected to %s %s, %d tools. Type 'tools' to list them, 'quit' to leave.\n",
		info.Name, info.Version, len(s.Tools()))
	return bridge.RunREPL(ctx, s, os.Stdin, os.Stdout)
}
