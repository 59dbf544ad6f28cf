// Package metrics provides Prometheus instrumentation for the wallet engine.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern and status class.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LedgerTransitionsTotal counts transactions reaching a status, by type.
	LedgerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_transitions_total",
			Help:      "Ledger transactions reaching a status, by type and status.",
		},
		[]string{"type", "status"},
	)

	// LedgerNoopsTotal counts re-applications ignored because the transaction was already final.
	LedgerNoopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_noops_total",
			Help:      "Status updates ignored because the transaction was already terminal.",
		},
		[]string{"type", "reason"},
	)

	// EscrowOperationsTotal counts escrow operations by operation and outcome.
	EscrowOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_operations_total",
			Help:      "Escrow hold/release/refund operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	DistributionLegsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_legs_total",
			Help:      "Distribution legs by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// ProviderCallbacksTotal counts inbound provider notifications by outcome.
	ProviderCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_callbacks_total",
			Help:      "Provider callbacks by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Outbound payment provider request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "outcome"},
	)

	// TxRetriesTotal counts atomic units re-run after serialization failures or deadlocks.
	TxRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_retries_total",
		Help:      "Atomic units retried after a transient database conflict.",
	})

	// SweptDepositsTotal counts pending deposits cancelled for exceeding their TTL.
	SweptDepositsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_deposits_total",
		Help:      "Pending deposits auto-cancelled after their TTL.",
	})

	// StaleWithdrawals reports withdrawals still pending past the stale threshold.
	StaleWithdrawals = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stale_pending_withdrawals",
		Help:      "Withdrawals pending longer than the configured threshold.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LedgerTransitionsTotal,
		LedgerNoopsTotal,
		EscrowOperationsTotal,
		DistributionLegsTotal,
		ProviderCallbacksTotal,
		ProviderRequestDuration,
		TxRetriesTotal,
		SweptDepositsTotal,
		StaleWithdrawals,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Route pattern, not raw path, to bound label cardinality.
		path := c.FullPath()
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
