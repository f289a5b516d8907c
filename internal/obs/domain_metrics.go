package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts payment attempts by method and outcome.
	CheckoutTotal *prometheus.CounterVec
	// LedgerAppendTotal counts ledger batch appends by backend and outcome.
	LedgerAppendTotal *prometheus.CounterVec
	// LedgerAppendLatency records batch append latency in milliseconds.
	LedgerAppendLatency *prometheus.HistogramVec
	// ReportRefreshTotal counts dashboard refresh runs by outcome (ok, error, skipped).
	ReportRefreshTotal *prometheus.CounterVec
	// ReportRefreshLatency records dashboard aggregation latency in milliseconds.
	ReportRefreshLatency prometheus.Histogram
	// NotificationsTotal counts notifications handed to sinks.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of payment attempts by method and result.",
		}, "method", "result")
		LedgerAppendTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_append_total",
			Help:      "Count of ledger batch appends by backend and result.",
		}, "backend", "result")
		LedgerAppendLatency = registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_append_duration_ms",
			Help:      "Latency of ledger batch appends in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, "backend")
		ReportRefreshTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_refresh_total",
			Help:      "Count of dashboard refresh runs by result.",
		}, "result")
		ReportRefreshLatency = registerHistogram(reg, prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_refresh_duration_ms",
			Help:      "Latency of dashboard aggregation in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		NotificationsTotal = registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notifications handed to sinks by level and sink.",
		}, "level", "sink")
	})
}
