// Package metrics defines Prometheus metrics for the admin auth service.
//
// Metric naming follows Prometheus conventions:
//   - admin_auth_ prefix for all custom metrics
//   - _total suffix for counters
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginsTotal counts login attempts by terminal state.
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_auth_logins_total",
			Help: "Total admin login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// RefreshesTotal counts refresh attempts by outcome.
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_auth_refreshes_total",
			Help: "Total access-token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// GuardDecisionsTotal counts request guard decisions.
	GuardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_auth_guard_decisions_total",
			Help: "Total guarded requests by decision.",
		},
		[]string{"decision"},
	)

	// AuditDroppedTotal counts audit entries dropped because the buffer was full.
	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admin_auth_audit_dropped_total",
			Help: "Audit entries dropped because the dispatch buffer was full.",
		},
	)

	// AuditWriteErrorsTotal counts sink write failures.
	AuditWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admin_auth_audit_write_errors_total",
			Help: "Audit entries the sink failed to persist.",
		},
	)
)

// Registry holds the service collectors plus Go runtime and process metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LoginsTotal,
		RefreshesTotal,
		GuardDecisionsTotal,
		AuditDroppedTotal,
		AuditWriteErrorsTotal,
	)
}

// RegisterPool exports database/sql statistics for the admin pool.
func RegisterPool(db *sql.DB) error {
	return Registry.Register(collectors.NewDBStatsCollector(db, "admin"))
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func RecordLogin(outcome string) {
	LoginsTotal.WithLabelValues(outcome).Inc()
}

func RecordRefresh(outcome string) {
	RefreshesTotal.WithLabelValues(outcome).Inc()
}

func RecordGuardDecision(decision string) {
	GuardDecisionsTotal.WithLabelValues(decision).Inc()
}
