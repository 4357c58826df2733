package escalation

import (
	"time"

	"github.com/bissquit/incident-escalator/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = metrics.Namespace

var (
	escalationsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "scheduled_total",
			Help:      "Total escalations registered with the scheduler",
		},
	)

	escalationsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "pending",
			Help:      "Number of escalations waiting for their deadline",
		},
	)

	escalationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "fired_total",
			Help:      "Total deferred escalations executed, by outcome",
		},
		[]string{"outcome"},
	)

	escalationSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "send_duration_seconds",
			Help:      "Time spent in the mailer per escalation email",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	escalationStoreWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "store_write_failures_total",
			Help:      "Escalation emails delivered whose notified flag could not be persisted",
		},
	)
)

func recordScheduled() {
	escalationsScheduled.Inc()
}

func recordPending(n int) {
	escalationsPending.Set(float64(n))
}

func recordFired(outcome Outcome) {
	escalationsFired.WithLabelValues(string(outcome)).Inc()
}

func recordSendDuration(d time.Duration) {
	escalationSendDuration.Observe(d.Seconds())
}

func recordStoreWriteFailure() {
	escalationStoreWriteFailures.Inc()
}
