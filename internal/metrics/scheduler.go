package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sip"

var (
	schedulerActivePlans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_plans",
			Help:      "Number of active plans seen by the last reconcile sweep",
		},
	)

	schedulerRegisteredTriggers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "registered_triggers",
			Help:      "Number of triggers in the schedule registry after the last sweep",
		},
	)

	schedulerSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total number of reconcile sweeps by status",
		},
		[]string{"status"}, // status: success, partial, failed
	)

	schedulerSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of reconcile sweeps",
			Buckets:   prometheus.DefBuckets,
		},
	)

	schedulerTriggerChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "trigger_changes_total",
			Help:      "Total number of trigger registry writes by operation",
		},
		[]string{"operation"}, // operation: created, refreshed, removed
	)
)

type PromSchedulerMetrics struct{}

func NewSchedulerMetrics() *PromSchedulerMetrics {
	return &PromSchedulerMetrics{}
}

func (m *PromSchedulerMetrics) SetActivePlans(count float64) {
	schedulerActivePlans.Set(count)
}

func (m *PromSchedulerMetrics) SetRegisteredTriggers(count float64) {
	schedulerRegisteredTriggers.Set(count)
}

func (m *PromSchedulerMetrics) RecordSweep(status string, duration float64) {
	schedulerSweepsTotal.WithLabelValues(status).Inc()
	schedulerSweepDuration.Observe(duration)
}

func (m *PromSchedulerMetrics) RecordTriggerChange(operation string) {
	schedulerTriggerChanges.WithLabelValues(operation).Inc()
}
