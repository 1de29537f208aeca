package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sqlmcp/pkg/kit"
)

type envelope struct {
	Success bool `json:"success"`
}

func (e envelope) OK() bool { return e.Success }

func newLogger(t *testing.T) (*SQLiteLogger, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "telemetry.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	l := NewSQLiteLogger(db, nil)
	require.NoError(t, l.Init())
	return l, db
}

func statusOf(t *testing.T, db *sql.DB, requestID string) string {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM audit_log WHERE request_id = ?`, requestID).Scan(&status))
	return status
}

func TestMiddlewareStatuses(t *testing.T) {
	l, db := newLogger(t)

	ok := Middleware(l, "insert_data")(func(ctx context.Context, req any) (any, error) {
		return envelope{Success: true}, nil
	})
	refused := Middleware(l, "delete_data")(func(ctx context.Context, req any) (any, error) {
		return envelope{Success: false}, nil
	})
	broken := Middleware(l, "get_table_schema")(func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("table not found")
	})

	base := kit.WithTransport(context.Background(), "mcp_stdio")
	_, err := ok(kit.WithRequestID(base, "r1"), map[string]string{"table_name": "notes"})
	require.NoError(t, err)
	_, err = refused(kit.WithRequestID(base, "r2"), nil)
	require.NoError(t, err)
	_, err = broken(kit.WithRequestID(base, "r3"), nil)
	require.Error(t, err)

	require.NoError(t, l.Close())

	assert.Equal(t, StatusSuccess, statusOf(t, db, "r1"))
	assert.Equal(t, StatusFailure, statusOf(t, db, "r2"))
	assert.Equal(t, StatusError, statusOf(t, db, "r3"))

	var tool, transport, params string
	require.NoError(t, db.QueryRow(`SELECT tool, transport, parameters FROM audit_log WHERE request_id = 'r1'`).Scan(&tool, &transport, &params))
	assert.Equal(t, "insert_data", tool)
	assert.Equal(t, "mcp_stdio", transport)
	assert.JSONEq(t, `{"table_name":"notes"}`, params)
}

func TestLogFillsDefaults(t *testing.T) {
	l, db := newLogger(t)
	defer l.Close()

	e := &Entry{Tool: "list_db_tables", RequestID: "sync"}
	require.NoError(t, l.Log(context.Background(), e))

	assert.NotEmpty(t, e.EntryID)
	assert.NotZero(t, e.Timestamp)
	assert.Equal(t, "mcp_stdio", e.Transport)
	assert.Equal(t, StatusSuccess, statusOf(t, db, "sync"))
}
