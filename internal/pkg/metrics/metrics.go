// Package metrics defines the process-wide Prometheus collectors shared by the
// HTTP layer and the incident stores. Escalation metrics live with the
// escalation package under the same namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "incidentescalator"

var (
	// BuildInfo is always 1; its labels carry the running build.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build information of the running escalator",
		},
		[]string{"version", "commit"},
	)

	// HTTPRequestDuration is labeled by chi route pattern, not raw path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections is refreshed periodically from the active store.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by driver and state",
		},
		[]string{"driver", "state"},
	)
)

// RecordBuildInfo publishes the running build.
func RecordBuildInfo(version, commit string) {
	BuildInfo.WithLabelValues(version, commit).Set(1)
}
