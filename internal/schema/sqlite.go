package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/JonMunkholm/CrmAssist/internal/crmdb/migrations"
)

const sqliteTablesSQL = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> '` + migrations.LedgerTable + `'
ORDER BY name`

const sqliteColumnsSQL = `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`

const sqliteForeignKeysSQL = `SELECT "from", "table", COALESCE("to", '') FROM pragma_foreign_key_list(?) ORDER BY id, seq`

func loadSQLite(ctx context.Context, db *sql.DB) ([]Table, error) {
	names, err := queryStrings(ctx, db, sqliteTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	columns := make(map[string][]Column, len(names))
	primaryKeys := make(map[string][]string, len(names))
	foreignKeys := make(map[string][]ForeignKey, len(names))
	estimates := make(map[string]int64, len(names))

	for _, name := range names {
		cols, pks, err := sqliteColumns(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", name, err)
		}
		columns[name] = cols
		primaryKeys[name] = pks

		fks, err := sqliteForeignKeys(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", name, err)
		}
		foreignKeys[name] = fks

		// SQLite has no planner estimate, so count exactly.
		var n int64
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(name)).Scan(&n); err == nil {
			estimates[name] = n
		}
	}

	return assemble(names, columns, primaryKeys, foreignKeys, estimates), nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]Column, []string, error) {
	rows, err := db.QueryContext(ctx, sqliteColumnsSQL, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		cols []Column
		pks  []string
	)
	for rows.Next() {
		var (
			col     Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &pk); err != nil {
			return nil, nil, err
		}
		col.Nullable = notNull == 0 && pk == 0
		if pk > 0 {
			pks = append(pks, col.Name)
		}
		cols = append(cols, col)
	}
	return cols, pks, rows.Err()
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, sqliteForeignKeysSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, err
		}
		if fk.ForeignColumn == "" {
			fk.ForeignColumn = "id"
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
