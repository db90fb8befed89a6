// Package metrics holds the Prometheus instruments for the call-log sync pipeline.
//
// Instruments are registered on the default registry via promauto and exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job-level
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "callsync_run_duration_seconds",
			Help:    "Duration of a full sync job across all active integrations",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callsync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last sync job in which no integration failed",
		},
	)

	IntegrationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_integrations_total",
			Help: "Integrations handled by the sync job, by outcome",
		},
		[]string{"outcome"},
	)

	// Fetch
	CallRecordsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_records_synced_total",
			Help: "Call records persisted (or already present) during sync",
		},
		[]string{"provider"},
	)

	RecordPersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_record_persist_errors_total",
			Help: "Call records skipped because persistence failed",
		},
		[]string{"provider"},
	)

	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_pages_fetched_total",
			Help: "Call-log pages requested from the provider, by result",
		},
		[]string{"provider", "result"},
	)

	// Credentials
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_token_refreshes_total",
			Help: "OAuth refresh attempts, by result",
		},
		[]string{"provider", "result"},
	)

	// Rollup
	DailyMetricsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callsync_daily_metrics_written_total",
			Help: "DailyMetric rows upserted by the rollup aggregator",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callsync_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callsync_circuit_breaker_requests_total",
			Help: "Requests passed through the provider circuit breaker, by result",
		},
		[]string{"name", "result"},
	)
)
