package crmdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JonMunkholm/CrmAssist/internal/query"
)

// Executor runs generated statements verbatim against the store.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

var _ query.Executor = (*Executor)(nil)

// NewExecutor returns an executor. A zero timeout means no per-query bound.
func NewExecutor(db *sql.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

func (e *Executor) Execute(ctx context.Context, stmt string) (query.Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return query.Result{}, err
	}
	defer rows.Close()

	return collect(rows)
}

// collect drains rows into a Result. Rows is never nil.
func collect(rows *sql.Rows) (query.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("read columns: %w", err)
	}

	result := query.Result{Columns: columns, Rows: make([]query.Row, 0)}
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(query.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}
	return result, nil
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
