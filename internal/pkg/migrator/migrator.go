// Package migrator applies the embedded schema migrations with golang-migrate.
package migrator

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/bissquit/incident-escalator/internal/pkg/sqlite"
	"github.com/bissquit/incident-escalator/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrUnsupportedDriver is returned for a driver without migrations.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Migrator runs schema migrations against one database.
type Migrator struct {
	m      *migrate.Migrate
	driver string
}

// New opens a dedicated connection to url and prepares the migrations for driver.
func New(driver, url string) (*Migrator, error) {
	var (
		source  fs.FS
		dir     string
		db      *sql.DB
		dbDrv   database.Driver
		openErr error
	)

	switch driver {
	case DriverPostgres:
		source, dir = migrations.Postgres, "postgres"
		db, openErr = sql.Open("pgx", url)
		if openErr == nil {
			dbDrv, openErr = migratepg.WithInstance(db, &migratepg.Config{})
		}
	case DriverSQLite:
		source, dir = migrations.SQLite, "sqlite"
		path := sqlite.PathFromURL(url)
		if openErr = sqlite.EnsureDir(path); openErr == nil {
			db, openErr = sql.Open("sqlite", sqlite.DSN(path, 0))
		}
		if openErr == nil {
			dbDrv, openErr = migratesqlite.WithInstance(db, &migratesqlite.Config{})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if openErr != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("open %s for migrations: %w", driver, openErr)
	}

	src, err := iofs.New(source, dir)
	if err != nil {
		_ = dbDrv.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDrv)
	if err != nil {
		_ = dbDrv.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{m: m, driver: driver}, nil
}

// Up applies all pending migrations. Having nothing to apply is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	m.logVersion("migrations applied")
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	m.logVersion("migration rolled back")
	return nil
}

// Version reports the current schema version and whether it is dirty.
// A database without migrations reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) logVersion(msg string) {
	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn(msg, "driver", m.driver, "error", err)
		return
	}
	slog.Info(msg, "driver", m.driver, "version", version, "dirty", dirty)
}
