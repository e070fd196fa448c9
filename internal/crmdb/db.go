// Package crmdb opens the CRM store and runs statements against it.
package crmdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/CrmAssist/internal/config"
	"github.com/JonMunkholm/CrmAssist/internal/logging"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Dialect groups drivers that share SQL syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DriverInfo maps a configured driver to its database/sql name and dialect.
func DriverInfo(driver string) (string, Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return "sqlite", DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return "postgres", DialectPostgres, nil
	case "pgx":
		return "pgx", DialectPostgres, nil
	case "mysql":
		return "mysql", DialectMySQL, nil
	default:
		return "", "", fmt.Errorf("%w: %q (supported: sqlite, postgres, pgx, mysql)", ErrUnsupportedDriver, driver)
	}
}

// Open connects to the store described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, Dialect, error) {
	if cfg.DSN == "" {
		return nil, "", fmt.Errorf("database dsn is required")
	}
	driverName, dialect, err := DriverInfo(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	dsn := cfg.DSN
	switch dialect {
	case DialectSQLite:
		if dsn, err = parseSQLiteDSN(dsn); err != nil {
			return nil, "", fmt.Errorf("parsing sqlite DSN: %w", err)
		}
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, "", fmt.Errorf("creating sqlite directory: %w", err)
		}
	case DialectMySQL:
		dsn = withMySQLParams(dsn)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", driverName, err)
	}

	if dialect == DialectSQLite {
		// One writer; keeps pragmas applied to the single connection.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s database at %s: %w", driverName, logging.Mask(cfg.DSN), err)
	}

	if dialect == DialectSQLite {
		if err := applyPragmas(pingCtx, db); err != nil {
			_ = db.Close()
			return nil, "", err
		}
	}
	return db, dialect, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// withMySQLParams enables the options migrations and row scanning rely on.
func withMySQLParams(dsn string) string {
	params := []string{"multiStatements=true", "parseTime=true"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		dsn += sep + p
		sep = "&"
	}
	return dsn
}
