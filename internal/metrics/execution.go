package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "trade_attempts_total",
			Help:      "Total number of trade attempts by result",
		},
		[]string{"result"}, // result: settled, insufficient_funds, failed
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "executions_total",
			Help:      "Total number of plan executions by resulting plan status",
		},
		[]string{"status"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Duration of plan executions including backoff waits",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

type PromExecutionMetrics struct{}

func NewExecutionMetrics() *PromExecutionMetrics {
	return &PromExecutionMetrics{}
}

func (m *PromExecutionMetrics) RecordAttempt(result string) {
	executionAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *PromExecutionMetrics) RecordExecution(status string, duration float64) {
	executionsTotal.WithLabelValues(status).Inc()
	executionDuration.Observe(duration)
}
