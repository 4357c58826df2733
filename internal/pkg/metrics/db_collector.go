package metrics

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordPgxPoolMetrics updates database pool metrics from a pgx pool.
func RecordPgxPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("postgres", "in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("postgres", "idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("postgres", "max").Set(float64(stats.MaxConns()))
}

// RecordSQLDBMetrics updates database pool metrics from a database/sql handle.
func RecordSQLDBMetrics(driver string, db *sql.DB) {
	stats := db.Stats()

	DBPoolConnections.WithLabelValues(driver, "in_use").Set(float64(stats.InUse))
	DBPoolConnections.WithLabelValues(driver, "idle").Set(float64(stats.Idle))
	DBPoolConnections.WithLabelValues(driver, "max").Set(float64(stats.MaxOpenConnections))
}
