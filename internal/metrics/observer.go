package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	observerSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "submissions_total",
			Help:      "Total number of transaction submissions by result",
		},
		[]string{"result"}, // accepted, failed
	)

	observerConfirmationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "confirmations_total",
			Help:      "Total number of confirmations delivered",
		},
	)

	observerOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "outcomes_total",
			Help:      "Total number of terminal outcomes by status",
		},
		[]string{"status"},
	)

	observerOutcomeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "outcome_duration_seconds",
			Help:      "Time from submission to terminal outcome by status",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	observerActiveObservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "active_observations",
			Help:      "Number of transactions currently observed",
		},
	)

	observerChainHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txobserver",
			Subsystem: "observer",
			Name:      "chain_height",
			Help:      "Latest block height seen by the observer",
		},
	)
)

// PromObserverMetrics provides Prometheus implementation of ObserverMetrics interface
type PromObserverMetrics struct{}

func NewObserverMetrics() ObserverMetrics {
	return &PromObserverMetrics{}
}

func (m *PromObserverMetrics) RecordSubmission(result string) {
	observerSubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *PromObserverMetrics) RecordConfirmation() {
	observerConfirmationsTotal.Inc()
}

func (m *PromObserverMetrics) RecordOutcome(status string, duration float64) {
	observerOutcomesTotal.WithLabelValues(status).Inc()
	observerOutcomeDuration.WithLabelValues(status).Observe(duration)
}

func (m *PromObserverMetrics) ObservationStarted() {
	observerActiveObservations.Inc()
}

func (m *PromObserverMetrics) ObservationFinished() {
	observerActiveObservations.Dec()
}

func (m *PromObserverMetrics) SetChainHeight(height float64) {
	observerChainHeight.Set(height)
}
