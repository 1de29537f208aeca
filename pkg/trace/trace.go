// Package trace records every SQL statement the access layer runs.
//
// Each statement is logged through slog (debug, warn above SlowThreshold,
// error on failure) and, when the store has a telemetry database, persisted
// asynchronously to sql_traces so slow or failing tool calls can be
// correlated by trace_id after the fact.
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
)

// SlowThreshold is the duration above which a statement is logged at warn.
const SlowThreshold = 100 * time.Millisecond

// Entry is a single SQL trace record.
type Entry struct {
	TraceID    string
	Op         string // "exec", "query" or "begin"/"commit"/"rollback"
	Query      string
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	op TEXT NOT NULL,
	query TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_ts ON sql_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_sql_traces_tid ON sql_traces(trace_id) WHERE trace_id != '';
`

// Store logs statements and optionally persists them. A Store built with a
// nil database only logs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}
	once   sync.Once
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger.With("component", "sql"),
		ch:     make(chan *Entry, 1024),
		done:   make(chan struct{}),
	}
	if db == nil {
		close(s.done)
		return s
	}
	go s.flushLoop()
	return s
}

func (s *Store) Init() error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(Schema)
	return err
}

// Record logs a SQL operation with timing and optional error.
func (s *Store) Record(ctx context.Context, op, query string, d time.Duration, err error) {
	traceID := kit.GetTraceID(ctx)

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if d > SlowThreshold {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", query),
		slog.Duration("duration", d),
	}
	if traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		attrs = append(attrs, slog.String("error", errMsg))
	}
	s.logger.LogAttrs(ctx, level, "SQL", attrs...)

	if s.db == nil {
		return
	}
	s.recordAsync(&Entry{
		TraceID:    traceID,
		Op:         op,
		Query:      query,
		DurationUs: d.Microseconds(),
		Error:      errMsg,
		Timestamp:  time.Now().UnixMicro(),
	})
}

func (s *Store) recordAsync(e *Entry) {
	select {
	case s.ch <- e:
	default:
		s.logger.Warn("trace buffer full, dropping entry", "op", e.Op)
	}
}

// Close flushes pending entries. It is safe to call more than once.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.db != nil {
			close(s.ch)
		}
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("trace store: begin tx", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, op, query, duration_us, error, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Op, e.Query, e.DurationUs, e.Error, e.Timestamp); err != nil {
			s.logger.Error("trace store: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("trace store: commit", "error", err)
	}
}
