package crmdb

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// parseSQLiteDSN turns sqlite://path[?query] into a driver DSN. Values without
// the scheme are passed through unchanged.
func parseSQLiteDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		if strings.Contains(dsn, "://") {
			return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
		}
		return dsn, nil
	}

	rest := strings.TrimPrefix(dsn, "sqlite://")

	if rest == ":memory:" || strings.HasPrefix(rest, ":memory:?") {
		return rest, nil
	}

	path, query, hasQuery := strings.Cut(rest, "?")
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("unescaping path: %w", err)
	}
	path = unescaped

	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	if hasQuery {
		return path + "?" + query, nil
	}
	return path, nil
}

// ensureSQLiteDir creates the parent directory of a file-backed database.
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(dsn, "?")
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
