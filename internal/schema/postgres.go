package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const pgTablesSQL = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		  AND table_name <> 'crm_schema_migrations'
		ORDER BY table_name`

const pgColumnsSQL = `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS nullable,
			COALESCE(pgd.description, '') AS comment
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
			ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`

const pgPrimaryKeysSQL = `
		SELECT
			tc.table_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.ordinal_position`

const pgForeignKeysSQL = `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS foreign_table,
			ccu.column_name AS foreign_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'`

const pgRowEstimatesSQL = `
		SELECT relname, reltuples::bigint
		FROM pg_class
		WHERE relnamespace = 'public'::regnamespace
		  AND relkind = 'r'`

func loadPostgres(ctx context.Context, db *sql.DB) ([]Table, error) {
	names, err := queryStrings(ctx, db, pgTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	columns, err := pgColumns(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	primaryKeys, err := queryPairs(ctx, db, pgPrimaryKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("primary keys: %w", err)
	}

	foreignKeys, err := foreignKeysFrom(ctx, db, pgForeignKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}

	estimates, err := rowEstimates(ctx, db, pgRowEstimatesSQL)
	if err != nil {
		// Non-fatal: continue without estimates
		estimates = make(map[string]int64)
	}

	return assemble(names, columns, primaryKeys, foreignKeys, estimates), nil
}

func pgColumns(ctx context.Context, db *sql.DB) (map[string][]Column, error) {
	rows, err := db.QueryContext(ctx, pgColumnsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.Nullable, &col.Comment); err != nil {
			return nil, err
		}
		columns[tableName] = append(columns[tableName], col)
	}
	return columns, rows.Err()
}

func foreignKeysFrom(ctx context.Context, db *sql.DB, stmt string) (map[string][]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string][]ForeignKey)
	for rows.Next() {
		var tableName string
		var fk ForeignKey
		if err := rows.Scan(&tableName, &fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, err
		}
		fks[tableName] = append(fks[tableName], fk)
	}
	return fks, rows.Err()
}

func rowEstimates(ctx context.Context, db *sql.DB, stmt string) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		if count < 0 {
			count = 0
		}
		estimates[name] = count
	}
	return estimates, rows.Err()
}
