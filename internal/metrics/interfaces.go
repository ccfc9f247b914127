package metrics

// SchedulerMetrics is implemented by the reconciler's metrics sink.
type SchedulerMetrics interface {
	SetActivePlans(count float64)
	SetRegisteredTriggers(count float64)
	RecordSweep(status string, duration float64)
	RecordTriggerChange(operation string)
}

// ExecutionMetrics is implemented by the execution engine's metrics sink.
type ExecutionMetrics interface {
	RecordAttempt(result string)
	RecordExecution(status string, duration float64)
}

// WorkerMetrics is implemented by the dispatch worker's metrics sink.
type WorkerMetrics interface {
	RecordDispatch(outcome string, duration float64)
	RecordRateLimited()
}

type nilMetrics struct{}

func (nilMetrics) SetActivePlans(float64)          {}
func (nilMetrics) SetRegisteredTriggers(float64)   {}
func (nilMetrics) RecordSweep(string, float64)     {}
func (nilMetrics) RecordTriggerChange(string)      {}
func (nilMetrics) RecordAttempt(string)            {}
func (nilMetrics) RecordExecution(string, float64) {}
func (nilMetrics) RecordDispatch(string, float64)  {}
func (nilMetrics) RecordRateLimited()              {}

// Nil returns a sink that drops everything. Used when metrics are disabled and in tests.
func Nil() interface {
	SchedulerMetrics
	ExecutionMetrics
	WorkerMetrics
} {
	return nilMetrics{}
}
