package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const mysqlTablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' AND table_name <> 'crm_schema_migrations'
ORDER BY table_name`

const mysqlColumnsSQL = `SELECT table_name, column_name, column_type, is_nullable = 'YES', column_key = 'PRI', column_comment
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

const mysqlForeignKeysSQL = `SELECT table_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL`

const mysqlRowEstimatesSQL = `SELECT table_name, COALESCE(table_rows, 0) FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`

func loadMySQL(ctx context.Context, db *sql.DB) ([]Table, error) {
	names, err := queryStrings(ctx, db, mysqlTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	rows, err := db.QueryContext(ctx, mysqlColumnsSQL)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	primaryKeys := make(map[string][]string)
	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.Nullable, &col.IsPK, &col.Comment); err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}
		if col.IsPK {
			primaryKeys[tableName] = append(primaryKeys[tableName], col.Name)
		}
		columns[tableName] = append(columns[tableName], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	foreignKeys, err := foreignKeysFrom(ctx, db, mysqlForeignKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}

	estimates, err := rowEstimates(ctx, db, mysqlRowEstimatesSQL)
	if err != nil {
		estimates = make(map[string]int64)
	}

	return assemble(names, columns, primaryKeys, foreignKeys, estimates), nil
}
