package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the bot's operational metrics.
//
// Tracked series:
//   - commands by name and status
//   - editing session outcomes by mode
//   - currently active editing sessions
//   - store query latency by operation
type Metrics struct {
	// CommandCounter counts command invocations.
	// Labels: command, status (ok|rejected|error)
	CommandCounter *prometheus.CounterVec

	// SessionOutcome counts closed editing sessions.
	// Labels: mode (create|modify), outcome (success|rejected|cancelled|timeout)
	SessionOutcome *prometheus.CounterVec

	// ActiveSessions tracks currently open editing sessions.
	// Labels: mode
	ActiveSessions *prometheus.GaugeVec

	// StoreQueryDuration measures store latency in seconds.
	// Labels: operation (select|insert|update|delete), status (success|error)
	StoreQueryDuration *prometheus.HistogramVec
}

// NewMetrics registers the bot's metrics on reg. Pass nil to use the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CommandCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitybot_commands_total",
			Help: "Command invocations by name and status.",
		}, []string{"command", "status"}),

		SessionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facilitybot_session_outcomes_total",
			Help: "Closed editing sessions by mode and outcome.",
		}, []string{"mode", "outcome"}),

		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "facilitybot_active_sessions",
			Help: "Currently open editing sessions.",
		}, []string{"mode"}),

		StoreQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facilitybot_store_query_duration_seconds",
			Help:    "Store query latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation", "status"}),
	}
}

// ObserveStoreQuery records one store operation.
func (m *Metrics) ObserveStoreQuery(operation string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreQueryDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// Command records one command invocation.
func (m *Metrics) Command(name, status string) {
	m.CommandCounter.WithLabelValues(name, status).Inc()
}
