// Package db is the access layer for the served SQLite file.
//
// A Store holds no open connection: every operation opens its own
// connection and releases it on every exit path, so a server process never
// keeps the file locked between tool calls.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Tracer receives one record per SQL statement.
type Tracer interface {
	Record(ctx context.Context, op, query string, d time.Duration, err error)
}

type Store struct {
	path   string
	tracer Tracer
	logger *slog.Logger
}

type Option func(*Store)

func WithTracer(t Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithLogger sets the store logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open checks that the database at path is reachable and returns a Store
// for it. The schema is not touched.
func Open(path string, opts ...Option) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "db")

	sqlDB, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return s, nil
}

// Path returns the database file served by the store.
func (s *Store) Path() string { return s.path }

func (s *Store) dsn() string {
	return "file:" + s.path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// withConn opens a dedicated connection for one operation and closes it
// when fn returns, whether fn fails or not.
func (s *Store) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	sqlDB, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close()

	return fn(conn)
}

func (s *Store) record(ctx context.Context, op, query string, start time.Time, err error) {
	if s.tracer == nil {
		return
	}
	s.tracer.Record(ctx, op, query, time.Since(start), err)
}

// querier is satisfied by *sql.Conn and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	s.record(ctx, "query", query, start, err)
	return rows, err
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	s.record(ctx, "exec", query, start, err)
	return res, err
}

// inTx runs fn in a transaction on conn. Any error from fn or from the
// commit rolls the transaction back.
func (s *Store) inTx(ctx context.Context, conn *sql.Conn, fn func(*sql.Tx) error) (err error) {
	start := time.Now()
	tx, err := conn.BeginTx(ctx, nil)
	s.record(ctx, "begin", "BEGIN", start, err)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		start := time.Now()
		rbErr := tx.Rollback()
		s.record(ctx, "rollback", "ROLLBACK", start, rbErr)
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	start = time.Now()
	err = tx.Commit()
	s.record(ctx, "commit", "COMMIT", start, err)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// OpenTelemetry opens the long-lived database holding audit_log and
// sql_traces. Unlike the served file it is owned by this process, so it
// runs in WAL mode.
func OpenTelemetry(path string) (*sql.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening telemetry database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging telemetry database: %w", err)
	}
	return sqlDB, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	return nil
}
