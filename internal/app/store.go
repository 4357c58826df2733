package app

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-escalator/internal/config"
	"github.com/bissquit/incident-escalator/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-escalator/internal/incidents/postgres"
	incidentssqlite "github.com/bissquit/incident-escalator/internal/incidents/sqlite"
	"github.com/bissquit/incident-escalator/internal/pkg/metrics"
	"github.com/bissquit/incident-escalator/internal/pkg/migrator"
	"github.com/bissquit/incident-escalator/internal/pkg/postgres"
	"github.com/bissquit/incident-escalator/internal/pkg/sqlite"
)

// store bundles the incident repository with its driver-specific lifecycle.
type store struct {
	repo          incidents.Repository
	recordMetrics func()
	close         func()
}

// openStore connects to the configured database and, when enabled, migrates
// it once the connection is up.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	s, err := connectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := migrate(cfg); err != nil {
			s.close()
			return nil, err
		}
	}

	return s, nil
}

func connectStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
			ConnectAttempts: cfg.ConnectAttempts,
		})
		if err != nil {
			return nil, err
		}
		return &store{
			repo:          incidentspostgres.NewRepository(pool),
			recordMetrics: func() { metrics.RecordPgxPoolMetrics(pool) },
			close:         pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, sqlite.Config{
			Path:         cfg.URL,
			MaxOpenConns: cfg.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		return &store{
			repo:          incidentssqlite.NewRepository(db),
			recordMetrics: func() { metrics.RecordSQLDBMetrics(config.DriverSQLite, db) },
			close:         func() { _ = db.Close() },
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", migrator.ErrUnsupportedDriver, cfg.Driver)
}

// Migrate applies pending schema migrations for the configured database.
func Migrate(cfg config.DatabaseConfig) error {
	return migrate(cfg)
}

func migrate(cfg config.DatabaseConfig) error {
	m, err := migrator.New(cfg.Driver, cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return m.Up()
}
