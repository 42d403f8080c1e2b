package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExecutionError carries the upstream driver's failure for one execution
// attempt. Executions are never retried: target databases are untrusted and
// a retry could mask persistent misconfiguration.
type ExecutionError struct {
	Kind Kind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed (%s): %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is a fully buffered query result.
type Result struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Truncated bool                     `json:"truncated,omitempty"`
}

const defaultMaxRows = 10000

type Executor struct {
	registry *Registry
	maxRows  int
}

func NewExecutor(registry *Registry, maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Executor{registry: registry, maxRows: maxRows}
}

// Execute opens a fresh connection to the target database, runs the single
// statement, and buffers every returned row. The connection is never pooled
// across calls and is closed on every exit path.
func (e *Executor) Execute(ctx context.Context, kind Kind, connString, query string) (*Result, error) {
	driver, err := e.registry.Driver(kind)
	if err != nil {
		return nil, &ExecutionError{Kind: kind, Err: err}
	}

	db, err := driver.Open(connString)
	if err != nil {
		return nil, &ExecutionError{Kind: kind, Err: err}
	}
	defer db.Close()

	// sql.Open is lazy; surface unreachable hosts and bad credentials now.
	if err := db.PingContext(ctx); err != nil {
		return nil, &ExecutionError{Kind: kind, Err: err}
	}

	result, err := collectRows(ctx, db, query, e.maxRows)
	if err != nil {
		return nil, &ExecutionError{Kind: kind, Err: err}
	}
	return result, nil
}

func collectRows(ctx context.Context, db *sql.DB, query string, maxRows int) (*Result, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Columns: columns,
		Rows:    []map[string]interface{}{},
	}

	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			rowMap[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue makes driver values JSON-friendly.
func normalizeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}
