package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconcileIterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "txobserver",
			Subsystem: "reconcile",
			Name:      "iteration_duration_seconds",
			Help:      "Duration of reconcile iterations",
			Buckets:   prometheus.DefBuckets,
		},
	)

	reconcileTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txobserver",
			Subsystem: "reconcile",
			Name:      "transactions_total",
			Help:      "Total number of journal rows finalized by the reconcile worker by status",
		},
		[]string{"status"},
	)

	reconcileRPCErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txobserver",
			Subsystem: "reconcile",
			Name:      "rpc_errors_total",
			Help:      "Total number of RPC errors during reconciliation",
		},
	)

	reconcileLastProcessingTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txobserver",
			Subsystem: "reconcile",
			Name:      "last_processing_timestamp",
			Help:      "Timestamp of last reconcile iteration",
		},
	)
)

// PromReconcileMetrics provides Prometheus implementation of ReconcileMetrics interface
type PromReconcileMetrics struct{}

func NewReconcileMetrics() ReconcileMetrics {
	return &PromReconcileMetrics{}
}

func (m *PromReconcileMetrics) RecordIterationDuration(duration float64) {
	reconcileIterationDuration.Observe(duration)
}

func (m *PromReconcileMetrics) RecordReconciled(status string) {
	reconcileTransactionsTotal.WithLabelValues(status).Inc()
}

func (m *PromReconcileMetrics) RecordRPCError() {
	reconcileRPCErrors.Inc()
}

func (m *PromReconcileMetrics) SetLastProcessingTimestamp(timestamp float64) {
	reconcileLastProcessingTimestamp.Set(timestamp)
}
