// Package metrics registers the Prometheus instruments exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BalanceRecomputes counts full recomputations of a family's
	// balances, labeled by what triggered them.
	BalanceRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housetab_balance_recomputes_total",
		Help: "Full balance recomputations by trigger.",
	}, []string{"trigger"})

	// CacheReads counts balance reads served from the cache (hit) or
	// falling back to a rebuild (miss).
	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housetab_balance_cache_reads_total",
		Help: "Balance cache reads by result.",
	}, []string{"result"})

	// PaymentValidationFailures counts rejected payment submissions by reason.
	PaymentValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housetab_payment_validation_failures_total",
		Help: "Payment validation failures by reason.",
	}, []string{"reason"})

	// BalanceComputeSeconds times full balance computations.
	BalanceComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "housetab_balance_compute_seconds",
		Help:    "Time spent computing a family's balances from history.",
		Buckets: prometheus.DefBuckets,
	})

	// WSClients tracks currently connected WebSocket clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "housetab_ws_clients",
		Help: "Connected WebSocket clients.",
	})
)
