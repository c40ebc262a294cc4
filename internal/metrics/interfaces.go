package metrics

// ObserverMetrics interface for collecting transaction observation metrics
type ObserverMetrics interface {
	// RecordSubmission records a submission attempt, result is "accepted" or "failed"
	RecordSubmission(result string)

	// RecordConfirmation records a confirmation delivered for an observed transaction
	RecordConfirmation()

	// RecordOutcome records a terminal status and the time from submission to it
	RecordOutcome(status string, duration float64)

	// ObservationStarted and ObservationFinished track in-flight observations
	ObservationStarted()
	ObservationFinished()

	// SetChainHeight sets the latest head seen by any observation
	SetChainHeight(height float64)
}

// ReconcileMetrics interface for collecting reconcile worker metrics
type ReconcileMetrics interface {
	RecordIterationDuration(duration float64)
	RecordReconciled(status string)
	RecordRPCError()
	SetLastProcessingTimestamp(timestamp float64)
}

// NilObserverMetrics is a no-op implementation for when metrics are disabled
type NilObserverMetrics struct{}

func NewNilObserverMetrics() ObserverMetrics {
	return &NilObserverMetrics{}
}

func (n *NilObserverMetrics) RecordSubmission(result string)                {}
func (n *NilObserverMetrics) RecordConfirmation()                           {}
func (n *NilObserverMetrics) RecordOutcome(status string, duration float64) {}
func (n *NilObserverMetrics) ObservationStarted()                           {}
func (n *NilObserverMetrics) ObservationFinished()                          {}
func (n *NilObserverMetrics) SetChainHeight(height float64)                 {}

// NilReconcileMetrics is a no-op implementation for when metrics are disabled
type NilReconcileMetrics struct{}

func NewNilReconcileMetrics() ReconcileMetrics {
	return &NilReconcileMetrics{}
}

func (n *NilReconcileMetrics) RecordIterationDuration(duration float64)     {}
func (n *NilReconcileMetrics) RecordReconciled(status string)               {}
func (n *NilReconcileMetrics) RecordRPCError()                              {}
func (n *NilReconcileMetrics) SetLastProcessingTimestamp(timestamp float64) {}
