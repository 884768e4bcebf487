// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	OrdersExecuted      *prometheus.CounterVec
	OrderRejections     *prometheus.CounterVec
	ExecutionLatency    prometheus.Histogram
	CommissionCollected prometheus.Counter

	// Position metrics
	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec
	RealizedPnL     prometheus.Counter

	// Ledger metrics
	LedgerEntries            *prometheus.CounterVec
	Reconciliations          *prometheus.CounterVec
	ReconciliationMismatches prometheus.Counter

	// Concurrency metrics
	ConflictRetries prometheus.Counter
	AccountLockWait prometheus.Histogram

	// Broadcast metrics
	BroadcastClients prometheus.Gauge
	BroadcastErrors  prometheus.Counter

	// Monitor metrics
	MonitorRuns     *prometheus.CounterVec
	MonitorDuration prometheus.Histogram
	PositionsMarked prometheus.Counter
	TriggeredCloses *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulMonitor prometheus.Gauge
	UptimeSeconds         prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "papertrade"
	}

	return &Metrics{
		// Execution metrics
		OrdersExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_total",
			Help:      "Total number of executed orders by terminal status",
		}, []string{"status", "order_type"}),
		OrderRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "rejections_total",
			Help:      "Total number of order rejections by kind",
		}, []string{"kind"}),
		ExecutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Order execution latency in seconds, including lock wait and commit",
			Buckets:   prometheus.DefBuckets,
		}),
		CommissionCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "commission_total",
			Help:      "Total commission charged, in account currency units",
		}),

		// Position metrics
		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total number of positions opened",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of position close transitions by reason and kind",
		}, []string{"reason", "kind"}),
		RealizedPnL: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "realized_pnl_abs_total",
			Help:      "Sum of absolute realized P&L across closes",
		}),

		// Ledger metrics
		LedgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Total number of committed ledger entries by type",
		}, []string{"entry_type"}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconciliations_total",
			Help:      "Total number of reconciliation runs by result",
		}, []string{"result"}),
		ReconciliationMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconciliation_mismatches_total",
			Help:      "Total number of reconciliations reporting a discrepancy",
		}),

		// Concurrency metrics
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accountlock",
			Name:      "conflict_retries_total",
			Help:      "Total number of units of work retried after a version conflict",
		}),
		AccountLockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "accountlock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a per-account lock",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		// Broadcast metrics
		BroadcastClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "clients",
			Help:      "Current number of connected websocket clients",
		}),
		BroadcastErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Total number of failed event deliveries",
		}),

		// Monitor metrics
		MonitorRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "runs_total",
			Help:      "Total number of mark-to-market sweeps by status",
		}, []string{"status"}),
		MonitorDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "duration_seconds",
			Help:      "Mark-to-market sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PositionsMarked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "positions_marked_total",
			Help:      "Total number of open positions marked to market",
		}),
		TriggeredCloses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "triggered_closes_total",
			Help:      "Total number of positions auto-closed by trigger",
		}, []string{"trigger"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulMonitor: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_monitor_timestamp",
			Help:      "Unix timestamp of last successful mark-to-market sweep",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOrderFilled records a filled order and its commission.
func RecordOrderFilled(orderType string, commission float64, seconds float64) {
	DefaultMetrics.OrdersExecuted.WithLabelValues("filled", orderType).Inc()
	DefaultMetrics.CommissionCollected.Add(commission)
	DefaultMetrics.ExecutionLatency.Observe(seconds)
}

// RecordOrderRejected records a rejected order by rejection kind.
func RecordOrderRejected(orderType, kind string, seconds float64) {
	DefaultMetrics.OrdersExecuted.WithLabelValues("rejected", orderType).Inc()
	DefaultMetrics.OrderRejections.WithLabelValues(kind).Inc()
	DefaultMetrics.ExecutionLatency.Observe(seconds)
}

// RecordOrderCanceled records a canceled order.
func RecordOrderCanceled(orderType string) {
	DefaultMetrics.OrdersExecuted.WithLabelValues("canceled", orderType).Inc()
}

// RecordPositionOpened increments the positions opened counter.
func RecordPositionOpened() {
	DefaultMetrics.PositionsOpened.Inc()
}

// RecordPositionClosed records one close transition.
func RecordPositionClosed(reason string, full bool, realizedAbs float64) {
	kind := "partial"
	if full {
		kind = "full"
	}
	DefaultMetrics.PositionsClosed.WithLabelValues(reason, kind).Inc()
	DefaultMetrics.RealizedPnL.Add(realizedAbs)
}

// RecordLedgerEntry increments the ledger entries counter.
func RecordLedgerEntry(entryType string) {
	DefaultMetrics.LedgerEntries.WithLabelValues(entryType).Inc()
}

// RecordReconciliation records a reconciliation result.
func RecordReconciliation(reconciled bool) {
	if reconciled {
		DefaultMetrics.Reconciliations.WithLabelValues("reconciled").Inc()
		return
	}
	DefaultMetrics.Reconciliations.WithLabelValues("mismatch").Inc()
	DefaultMetrics.ReconciliationMismatches.Inc()
}

// RecordConflictRetry increments the conflict retries counter.
func RecordConflictRetry() {
	DefaultMetrics.ConflictRetries.Inc()
}

// RecordLockWait records time spent waiting for an account lock.
func RecordLockWait(seconds float64) {
	DefaultMetrics.AccountLockWait.Observe(seconds)
}

// UpdateBroadcastClients sets the connected clients gauge.
func UpdateBroadcastClients(n int) {
	DefaultMetrics.BroadcastClients.Set(float64(n))
}

// RecordBroadcastError increments the broadcast errors counter.
func RecordBroadcastError() {
	DefaultMetrics.BroadcastErrors.Inc()
}

// RecordMonitorRun records a mark-to-market sweep.
func RecordMonitorRun(status string, marked int, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.MonitorRuns.WithLabelValues(status).Inc()
	DefaultMetrics.MonitorDuration.Observe(durationSeconds)
	DefaultMetrics.PositionsMarked.Add(float64(marked))
	if status == "success" {
		DefaultMetrics.LastSuccessfulMonitor.Set(float64(finishedUnix))
	}
}

// RecordTriggeredClose records an automatic stop-loss or take-profit close.
func RecordTriggeredClose(trigger string) {
	DefaultMetrics.TriggeredCloses.WithLabelValues(trigger).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordUptime adds seconds to the uptime counter.
func RecordUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}
