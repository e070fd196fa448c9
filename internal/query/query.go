// Package query defines the contract between the assistant and the store that
// runs generated SQL.
package query

import "context"

// Row maps column names to scalar values.
type Row map[string]any

// Result is a tabular query result. Columns keep the order the store returned.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Empty reports whether the result has no rows.
func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Executor runs a single SQL statement verbatim, without parameters.
type Executor interface {
	Execute(ctx context.Context, sql string) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sql string) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, sql string) (Result, error) {
	return f(ctx, sql)
}
