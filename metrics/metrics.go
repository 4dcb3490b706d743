// Package metrics exposes Prometheus instrumentation for the signal
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the pipeline
type Metrics struct {
	ScanTicks      prometheus.Counter
	PairScanErrors prometheus.Counter
	SignalsTotal   *prometheus.CounterVec // label: direction
	SignalsExpired prometheus.Counter
	NotifySent     prometheus.Counter
	NotifyFailed   prometheus.Counter
	TradesTotal    *prometheus.CounterVec // label: status (executed|failed)
	TradeExecDur   prometheus.Histogram
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
}

// New creates the pipeline metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_ticks_total",
			Help: "Completed market scanner ticks.",
		}),
		PairScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_pair_errors_total",
			Help: "Per-pair fetch or generation failures, skipped within the tick.",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_generated_total",
			Help: "Signals emitted by the generator.",
		}, []string{"direction"}),
		SignalsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_expired_total",
			Help: "Signals deactivated by the expiry sweep.",
		}),
		NotifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Push notifications delivered.",
		}),
		NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Push notifications that failed delivery.",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trades_total",
			Help: "Trade execution attempts by outcome.",
		}, []string{"status"}),
		TradeExecDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trade_execution_duration_seconds",
			Help:    "Wall time of trade execution, lock to release.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_cache_hits_total",
			Help: "Signal pre-check answered from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_cache_misses_total",
			Help: "Signal pre-check that fell through to the store.",
		}),
	}

	reg.MustRegister(
		m.ScanTicks, m.PairScanErrors, m.SignalsTotal, m.SignalsExpired,
		m.NotifySent, m.NotifyFailed, m.TradesTotal, m.TradeExecDur,
		m.CacheHits, m.CacheMisses,
	)
	return m
}

// NewNop creates unregistered metrics for tests
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
