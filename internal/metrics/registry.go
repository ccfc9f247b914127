package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Service names for metrics registration
const (
	ServiceScheduler = "scheduler"
	ServiceExecution = "execution"
	ServiceWorker    = "worker"
	ServiceHTTP      = "http"
)

// RegisterMetrics registers metrics for the specified services with a custom registry
func RegisterMetrics(services []string, registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", registry, logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", registry, logger)

	for _, service := range services {
		switch service {
		case ServiceScheduler:
			registerIfNotExists(schedulerActivePlans, "scheduler_active_plans", registry, logger)
			registerIfNotExists(schedulerRegisteredTriggers, "scheduler_registered_triggers", registry, logger)
			registerIfNotExists(schedulerSweepsTotal, "scheduler_sweeps_total", registry, logger)
			registerIfNotExists(schedulerSweepDuration, "scheduler_sweep_duration", registry, logger)
			registerIfNotExists(schedulerTriggerChanges, "scheduler_trigger_changes", registry, logger)
		case ServiceExecution:
			registerIfNotExists(executionAttemptsTotal, "execution_trade_attempts", registry, logger)
			registerIfNotExists(executionsTotal, "execution_executions", registry, logger)
			registerIfNotExists(executionDuration, "execution_duration", registry, logger)
		case ServiceWorker:
			registerIfNotExists(workerDispatchTotal, "worker_dispatch_total", registry, logger)
			registerIfNotExists(workerDispatchDuration, "worker_dispatch_duration", registry, logger)
			registerIfNotExists(workerRateLimited, "worker_rate_limited", registry, logger)
			registerIfNotExists(workerTasksActive, "worker_tasks_active", registry, logger)
			registerIfNotExists(workerLastTaskTimestamp, "worker_last_task_timestamp", registry, logger)
		case ServiceHTTP:
			registerIfNotExists(httpRequestsTotal, "http_requests_total", registry, logger)
			registerIfNotExists(httpRequestDuration, "http_request_duration", registry, logger)
			registerIfNotExists(httpActiveRequests, "http_active_requests", registry, logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

// registerIfNotExists registers a collector if it's not already registered
func registerIfNotExists(collector prometheus.Collector, name string, registry *prometheus.Registry, logger *logrus.Logger) {
	if err := registry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegErr) {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}
