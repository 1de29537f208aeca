package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// TablesResult is the list_db_tables envelope.
type TablesResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Tables  []string `json:"tables"`
}

func (r *TablesResult) OK() bool { return r.Success }

// Column is one entry of a table schema, in declaration order.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaResult struct {
	Success   bool     `json:"success"`
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

func (r *SchemaResult) OK() bool { return r.Success }

type RowsResult struct {
	Success bool             `json:"success"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

func (r *RowsResult) OK() bool { return r.Success }

type InsertResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RowID   *int64 `json:"row_id,omitempty"`
}

func (r *InsertResult) OK() bool { return r.Success }

type DeleteResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RowsDeleted *int64 `json:"rows_deleted,omitempty"`
}

func (r *DeleteResult) OK() bool { return r.Success }

// QueryInput selects rows from Table. Empty Columns means "*"; an empty
// Condition selects every row. Args are bound to '?' placeholders in
// Condition.
type QueryInput struct {
	Table     string
	Columns   string
	Condition string
	Args      []any
}

// ListTables returns the names of all tables. Driver failures are reported
// in the envelope, never as an error.
func (s *Store) ListTables(ctx context.Context) *TablesResult {
	var tables []string
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := s.query(ctx, conn, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			tables = append(tables, name)
		}
		return rows.Err()
	})
	if err != nil {
		s.logger.Warn("list tables failed", "error", err)
		return &TablesResult{Message: fmt.Sprintf("Error listing tables: %v", err), Tables: []string{}}
	}
	if tables == nil {
		tables = []string{}
	}
	return &TablesResult{Success: true, Message: "Tables listed successfully.", Tables: tables}
}

// TableSchema returns the declared columns of table. A table without schema
// information is an error wrapping ErrTableNotFound.
func (s *Store) TableSchema(ctx context.Context, table string) (*SchemaResult, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	var columns []Column
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := s.query(ctx, conn, fmt.Sprintf("PRAGMA table_info(%s)", quoted))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid     int
				c       Column
				notNull int
				dflt    any
				pk      int
			)
			if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
				return err
			}
			columns = append(columns, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("reading schema of %q: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	return &SchemaResult{Success: true, TableName: table, Columns: columns}, nil
}

// QueryTable runs a SELECT and returns every matching row. Malformed input
// or a driver failure is returned as an error.
func (s *Store) QueryTable(ctx context.Context, in QueryInput) (*RowsResult, error) {
	quoted, err := quoteIdent(in.Table)
	if err != nil {
		return nil, err
	}
	cols, err := columnList(in.Columns)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(in.Condition); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, quoted)
	if !isBlank(in.Condition) {
		query += " WHERE " + in.Condition
	}

	var results []map[string]any
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := s.query(ctx, conn, query, bindValues(in.Args)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		results, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying table %q: %w", in.Table, err)
	}
	return &RowsResult{Success: true, Rows: results, Count: len(results)}, nil
}

// InsertRow inserts data as one row and reports the new rowid. Every failure,
// including validation, is reported in the envelope; a failed statement is
// rolled back.
func (s *Store) InsertRow(ctx context.Context, table string, data map[string]any) *InsertResult {
	if len(data) == 0 {
		return &InsertResult{Message: "No data provided for insertion."}
	}
	fail := func(err error) *InsertResult {
		s.logger.Warn("insert failed", "table", table, "error", err)
		return &InsertResult{Message: fmt.Sprintf("Error inserting data into table '%s': %v", table, err)}
	}

	quoted, err := quoteIdent(table)
	if err != nil {
		return fail(err)
	}
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		if cols[i], err = quoteIdent(name); err != nil {
			return fail(err)
		}
		args[i] = bindValue(data[name])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoted, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	var rowID int64
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		return s.inTx(ctx, conn, func(tx *sql.Tx) error {
			res, err := s.exec(ctx, tx, query, args...)
			if err != nil {
				return err
			}
			rowID, err = res.LastInsertId()
			return err
		})
	})
	if err != nil {
		return fail(err)
	}
	return &InsertResult{
		Success: true,
		Message: fmt.Sprintf("Data inserted successfully. Row ID: %d", rowID),
		RowID:   &rowID,
	}
}

// DeleteRows removes the rows of table matching condition. A blank
// condition is always refused so a delete can never default to every row.
func (s *Store) DeleteRows(ctx context.Context, table, condition string, args ...any) *DeleteResult {
	if isBlank(condition) {
		return &DeleteResult{
			Message: "Deletion condition cannot be empty. This is a safety measure to prevent accidental deletion of all rows.",
		}
	}
	fail := func(err error) *DeleteResult {
		s.logger.Warn("delete failed", "table", table, "error", err)
		return &DeleteResult{Message: fmt.Sprintf("Error deleting data from table '%s': %v", table, err)}
	}

	quoted, err := quoteIdent(table)
	if err != nil {
		return fail(err)
	}
	if err := checkCondition(condition); err != nil {
		return fail(err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoted, condition)

	var deleted int64
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		return s.inTx(ctx, conn, func(tx *sql.Tx) error {
			res, err := s.exec(ctx, tx, query, bindValues(args)...)
			if err != nil {
				return err
			}
			deleted, err = res.RowsAffected()
			return err
		})
	})
	if err != nil {
		return fail(err)
	}
	return &DeleteResult{
		Success:     true,
		Message:     fmt.Sprintf("%d row(s) deleted successfully from table '%s'.", deleted, table),
		RowsDeleted: &deleted,
	}
}

// scanRows materializes rows as column→value maps. TEXT read back as
// []byte is converted to string so it encodes as JSON text.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// bindValue adapts a decoded JSON value for the driver. Integral numbers
// are bound as int64 so SQLite stores INTEGER, not REAL; nested objects and
// arrays are stored as their JSON text.
func bindValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n)
		}
		return n
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return v
	}
}

func bindValues(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = bindValue(v)
	}
	return out
}
