package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Service names for metrics registration
const (
	ServiceObserver  = "observer"
	ServiceReconcile = "reconcile"
	ServiceHTTP      = "http"
)

// RegisterMetrics registers metrics for the specified services with a custom registry
func RegisterMetrics(services []string, registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", registry, logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", registry, logger)

	for _, service := range services {
		switch service {
		case ServiceObserver:
			registerIfNotExists(observerSubmissionsTotal, "observer_submissions_total", registry, logger)
			registerIfNotExists(observerConfirmationsTotal, "observer_confirmations_total", registry, logger)
			registerIfNotExists(observerOutcomesTotal, "observer_outcomes_total", registry, logger)
			registerIfNotExists(observerOutcomeDuration, "observer_outcome_duration", registry, logger)
			registerIfNotExists(observerActiveObservations, "observer_active_observations", registry, logger)
			registerIfNotExists(observerChainHeight, "observer_chain_height", registry, logger)
		case ServiceReconcile:
			registerIfNotExists(reconcileIterationDuration, "reconcile_iteration_duration", registry, logger)
			registerIfNotExists(reconcileTransactionsTotal, "reconcile_transactions_total", registry, logger)
			registerIfNotExists(reconcileRPCErrors, "reconcile_rpc_errors", registry, logger)
			registerIfNotExists(reconcileLastProcessingTimestamp, "reconcile_last_processing_timestamp", registry, logger)
		case ServiceHTTP:
			registerIfNotExists(httpRequestsTotal, "http_requests_total", registry, logger)
			registerIfNotExists(httpRequestDuration, "http_request_duration", registry, logger)
			registerIfNotExists(httpActiveRequests, "http_active_requests", registry, logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

// registerIfNotExists registers a collector unless an identical one is already there
func registerIfNotExists(collector prometheus.Collector, name string, registry *prometheus.Registry, logger *logrus.Logger) {
	if err := registry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegErr) {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}
