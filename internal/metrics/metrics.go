package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FinalizationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_finalizations_total",
			Help: "Total finalization attempts by requested status and outcome.",
		},
		[]string{"requested", "outcome"},
	)
	FinalizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_finalization_duration_seconds",
			Help:    "Duration of finalization transactions in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"requested"},
	)
	InvariantViolationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_invariant_violations_total",
			Help: "Post-commit invariant check failures. Any increase is a bug.",
		},
		[]string{"check"},
	)
	ReconcileSweepCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_reconcile_sweeps_total",
			Help: "Expiry reconciliation outcomes by resulting status.",
		},
		[]string{"result"},
	)
	OutboxDeliveryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Outbox notification delivery attempts by result.",
		},
		[]string{"result"},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		FinalizationCount,
		FinalizationDuration,
		InvariantViolationCount,
		ReconcileSweepCount,
		OutboxDeliveryCount,
	)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
