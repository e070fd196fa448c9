// Package schema introspects the live CRM store and caches its structure for
// drift checks and agent tools.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
)

var ErrUnsupportedDialect = errors.New("unsupported dialect for schema introspection")

// Cache holds the store's table structure. Safe for concurrent use.
type Cache struct {
	dialect     crmdb.Dialect
	tables      []Table
	lastRefresh time.Time
	mu          sync.RWMutex
}

// Table represents a database table and its structure.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	RowEstimate int64        `json:"row_estimate"`
}

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	IsPK     bool   `json:"is_pk"`
	Comment  string `json:"comment,omitempty"`
}

type ForeignKey struct {
	Column        string `json:"column"`
	ForeignTable  string `json:"foreign_table"`
	ForeignColumn string `json:"foreign_column"`
}

// NewCache creates an empty cache for the given dialect.
func NewCache(dialect crmdb.Dialect) *Cache {
	return &Cache{dialect: dialect}
}

// Load fetches the schema from the database and replaces the cached copy.
func (c *Cache) Load(ctx context.Context, db *sql.DB) error {
	var (
		tables []Table
		err    error
	)
	switch c.dialect {
	case crmdb.DialectSQLite:
		tables, err = loadSQLite(ctx, db)
	case crmdb.DialectPostgres:
		tables, err = loadPostgres(ctx, db)
	case crmdb.DialectMySQL:
		tables, err = loadMySQL(ctx, db)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDialect, c.dialect)
	}
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	c.mu.Lock()
	c.tables = tables
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	return nil
}

// Tables returns a copy of the cached tables.
func (c *Cache) Tables() []Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables := make([]Table, len(c.tables))
	copy(tables, c.tables)
	return tables
}

// HasTable checks if a table exists in the cache, ignoring case.
func (c *Cache) HasTable(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasTable(name)
}

func (c *Cache) hasTable(name string) bool {
	for _, t := range c.tables {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Missing returns the names that are not present in the store, in input order.
func (c *Cache) Missing(names []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	for _, name := range names {
		if !c.hasTable(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ToText renders the schema as plain text for agent clients.
func (c *Cache) ToText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.tables) == 0 {
		return "(no tables found)"
	}

	var sb strings.Builder
	for i, table := range c.tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(tableToText(table))
	}
	return sb.String()
}

func (c *Cache) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

func tableToText(t Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TABLE: %s", t.Name)
	if t.RowEstimate > 0 {
		fmt.Fprintf(&sb, " (~%d rows)", t.RowEstimate)
	}
	sb.WriteString("\n")

	for _, col := range t.Columns {
		fmt.Fprintf(&sb, "  - %s: %s", col.Name, col.Type)

		var attrs []string
		if col.IsPK {
			attrs = append(attrs, "PK")
		}
		if !col.Nullable {
			attrs = append(attrs, "NOT NULL")
		}
		if len(attrs) > 0 {
			sb.WriteString(", " + strings.Join(attrs, ", "))
		}

		for _, fk := range t.ForeignKeys {
			if fk.Column == col.Name {
				fmt.Fprintf(&sb, " -> %s.%s", fk.ForeignTable, fk.ForeignColumn)
				break
			}
		}

		if col.Comment != "" {
			fmt.Fprintf(&sb, " // %s", col.Comment)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// assemble joins per-table metadata into the ordered table list.
func assemble(names []string, columns map[string][]Column, primaryKeys map[string][]string, foreignKeys map[string][]ForeignKey, estimates map[string]int64) []Table {
	tables := make([]Table, 0, len(names))
	for _, name := range names {
		table := Table{
			Name:        name,
			Columns:     columns[name],
			ForeignKeys: foreignKeys[name],
			RowEstimate: estimates[name],
		}
		for i := range table.Columns {
			for _, pk := range primaryKeys[name] {
				if table.Columns[i].Name == pk {
					table.Columns[i].IsPK = true
					break
				}
			}
		}
		tables = append(tables, table)
	}
	return tables
}

func queryStrings(ctx context.Context, db *sql.DB, stmt string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func queryPairs(ctx context.Context, db *sql.DB, stmt string) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		out[table] = append(out[table], col)
	}
	return out, rows.Err()
}
