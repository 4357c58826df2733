// Package sqlite provides SQLite database connection utilities.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout is how long a writer waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Config contains SQLite connection configuration.
type Config struct {
	// Path is a file path or a sqlite:/// URL.
	Path         string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// PathFromURL strips the sqlite:// and file: prefixes from a database URL.
// "sqlite:///./incidents.db" yields "./incidents.db" and
// "sqlite:////var/lib/app.db" yields "/var/lib/app.db".
func PathFromURL(url string) string {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		return strings.TrimPrefix(url, "sqlite:///")
	case strings.HasPrefix(url, "sqlite://"):
		return strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "file:"):
		return strings.TrimPrefix(url, "file:")
	}
	return url
}

// DSN builds the modernc driver data source name for path.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, busyTimeout.Milliseconds())
}

// EnsureDir creates the directory holding the database file if missing.
func EnsureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	return nil
}

// Open opens the SQLite database, creating its directory if missing.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	path := PathFromURL(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if err := EnsureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", DSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	slog.Info("connected to database", "driver", "sqlite", "path", path)
	return db, nil
}
