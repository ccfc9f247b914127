package metrics

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	workerDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "dispatch_total",
			Help:      "Total number of dispatched jobs by outcome",
		},
		[]string{"outcome"}, // outcome: executed, deregistered, retry
	)

	workerDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of job dispatch by outcome",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	workerRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rate_limited_total",
			Help:      "Total number of jobs that waited on the dispatch rate limiter",
		},
	)

	workerTasksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_active",
			Help:      "Number of currently active tasks by type",
		},
		[]string{"task_type"},
	)

	workerLastTaskTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "last_task_timestamp",
			Help:      "Timestamp of when worker last processed a task",
		},
	)
)

type PromWorkerMetrics struct{}

func NewWorkerMetrics() *PromWorkerMetrics {
	return &PromWorkerMetrics{}
}

func (m *PromWorkerMetrics) RecordDispatch(outcome string, duration float64) {
	workerDispatchTotal.WithLabelValues(outcome).Inc()
	workerDispatchDuration.WithLabelValues(outcome).Observe(duration)
	workerLastTaskTimestamp.SetToCurrentTime()
}

func (m *PromWorkerMetrics) RecordRateLimited() {
	workerRateLimited.Inc()
}

// WithTaskGauge wraps a task handler and tracks how many tasks of taskType are in flight.
func WithTaskGauge(handler asynq.Handler, taskType string) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		workerTasksActive.WithLabelValues(taskType).Inc()
		defer workerTasksActive.WithLabelValues(taskType).Dec()
		defer workerLastTaskTimestamp.Set(float64(time.Now().Unix()))
		return handler.ProcessTask(ctx, task)
	})
}
