package mcp

import (
	"context"

	"github.com/hazyhaar/sqlmcp/internal/db"
	"github.com/hazyhaar/sqlmcp/pkg/mcprt"
)

// Tools returns the database tools served over MCP, in advertised order.
func Tools(store *db.Store) []*mcprt.Tool {
	return []*mcprt.Tool{
		listTablesTool(store),
		tableSchemaTool(store),
		queryTableTool(store),
		insertDataTool(store),
		deleteDataTool(store),
	}
}

// --- list_db_tables ---

func listTablesTool(store *db.Store) *mcprt.Tool {
	return &mcprt.Tool{
		Name:        "list_db_tables",
		Description: "Lists all tables in the SQLite database.",
		Params: []mcprt.Param{
			{Name: "dummy_param", Type: mcprt.TypeString, Description: "Unused placeholder, any value is accepted", Default: "default_list_request"},
		},
		Endpoint: func(ctx context.Context, _ any) (any, error) {
			return store.ListTables(ctx), nil
		},
	}
}

// --- get_table_schema ---

type tableSchemaReq struct {
	TableName string `json:"table_name"`
}

func tableSchemaTool(store *db.Store) *mcprt.Tool {
	return &mcprt.Tool{
		Name:        "get_table_schema",
		Description: "Gets the schema (column names and types) of a specific table.",
		Params: []mcprt.Param{
			{Name: "table_name", Type: mcprt.TypeString, Description: "Table to describe", Required: true},
		},
		Decode: func(args map[string]any) (any, error) {
			return &tableSchemaReq{TableName: stringArg(args, "table_name")}, nil
		},
		Endpoint: func(ctx context.Context, request any) (any, error) {
			return store.TableSchema(ctx, request.(*tableSchemaReq).TableName)
		},
	}
}

// --- query_db_table ---

type queryTableReq struct {
	TableName string `json:"table_name"`
	Columns   string `json:"columns"`
	Condition string `json:"condition"`
	Args      []any  `json:"args,omitempty"`
}

func queryTableTool(store *db.Store) *mcprt.Tool {
	return &mcprt.Tool{
		Name:        "query_db_table",
		Description: "Queries a table with an optional column list and WHERE condition.",
		Params: []mcprt.Param{
			{Name: "table_name", Type: mcprt.TypeString, Description: "Table to query", Required: true},
			{Name: "columns", Type: mcprt.TypeString, Description: "Comma-separated column names, or *", Default: "*"},
			{Name: "condition", Type: mcprt.TypeString, Description: "SQL WHERE condition, without the WHERE keyword. It may not contain ';', even inside a quoted literal: write such values as ? and pass them in args", Default: "1=1"},
			{Name: "args", Type: mcprt.TypeArray, Description: "Values bound, in order, to the ? placeholders of condition"},
		},
		Decode: func(args map[string]any) (any, error) {
			r := &queryTableReq{
				TableName: stringArg(args, "table_name"),
				Columns:   stringArg(args, "columns"),
				Condition: stringArg(args, "condition"),
				Args:      arrayArg(args, "args"),
			}
			if r.Columns == "" {
				r.Columns = "*"
			}
			if _, set := args["condition"]; !set {
				r.Condition = "1=1"
			}
			return r, nil
		},
		Endpoint: func(ctx context.Context, request any) (any, error) {
			r := request.(*queryTableReq)
			return store.QueryTable(ctx, db.QueryInput{
				Table:     r.TableName,
				Columns:   r.Columns,
				Condition: r.Condition,
				Args:      r.Args,
			})
		},
	}
}

// --- insert_data ---

type insertDataReq struct {
	TableName string         `json:"table_name"`
	Data      map[string]any `json:"data"`
}

func insertDataTool(store *db.Store) *mcprt.Tool {
	return &mcprt.Tool{
		Name:        "insert_data",
		Description: "Inserts a new row of data into the specified table.",
		Params: []mcprt.Param{
			{Name: "table_name", Type: mcprt.TypeString, Description: "Target table", Required: true},
			{Name: "data", Type: mcprt.TypeObject, Description: "Column names mapped to values", Required: true},
		},
		Decode: func(args map[string]any) (any, error) {
			data, _ := args["data"].(map[string]any)
			return &insertDataReq{TableName: stringArg(args, "table_name"), Data: data}, nil
		},
		Endpoint: func(ctx context.Context, request any) (any, error) {
			r := request.(*insertDataReq)
			return store.InsertRow(ctx, r.TableName, r.Data), nil
		},
	}
}

// --- delete_data ---

type deleteDataReq struct {
	TableName string `json:"table_name"`
	Condition string `json:"condition"`
	Args      []any  `json:"args,omitempty"`
}

func deleteDataTool(store *db.Store) *mcprt.Tool {
	return &mcprt.Tool{
		Name:        "delete_data",
		Description: "Deletes rows from a table matching a required WHERE condition.",
		Params: []mcprt.Param{
			{Name: "table_name", Type: mcprt.TypeString, Description: "Target table", Required: true},
			{Name: "condition", Type: mcprt.TypeString, Description: "SQL WHERE condition selecting the rows to delete. Must not be empty. It may not contain ';', even inside a quoted literal: write such values as ? and pass them in args", Required: true},
			{Name: "args", Type: mcprt.TypeArray, Description: "Values bound, in order, to the ? placeholders of condition"},
		},
		Decode: func(args map[string]any) (any, error) {
			return &deleteDataReq{
				TableName: stringArg(args, "table_name"),
				Condition: stringArg(args, "condition"),
				Args:      arrayArg(args, "args"),
			}, nil
		},
		Endpoint: func(ctx context.Context, request any) (any, error) {
			r := request.(*deleteDataReq)
			return store.DeleteRows(ctx, r.TableName, r.Condition, r.Args...), nil
		},
	}
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func arrayArg(args map[string]any, key string) []any {
	v, _ := args[key].([]any)
	return v
}
