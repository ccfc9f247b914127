package dispatch

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/tasks"
)

type Config struct {
	Concurrency     int           `mapstructure:"concurrency" json:"concurrency,omitempty"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" json:"rate_per_second,omitempty"`
	JobAttempts     int           `mapstructure:"job_attempts" json:"job_attempts,omitempty"`
	JobBackoff      time.Duration `mapstructure:"job_backoff" json:"job_backoff,omitempty"`
	JobTimeout      time.Duration `mapstructure:"job_timeout" json:"job_timeout,omitempty"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout,omitempty"`
	ResultRetention time.Duration `mapstructure:"result_retention" json:"result_retention,omitempty"`
}

func NewServer(logger *logrus.Logger, redisOpt asynq.RedisConnOpt, queue string, cfg Config) *asynq.Server {
	if queue == "" {
		queue = tasks.DefaultQueueName
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Logger:      logger,
			Concurrency: concurrency,
			Queues: map[string]int{
				queue: 10,
			},
			RetryDelayFunc:  RetryDelay(cfg.JobBackoff),
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)
}

// NewServeMux routes plan jobs to worker behind the dispatch rate limit.
func NewServeMux(worker *Worker, ratePerSecond float64, m metrics.WorkerMetrics) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(RateLimit(NewLimiter(ratePerSecond), m))
	mux.Handle(tasks.TypeExecutePlan, metrics.WithTaskGauge(asynq.HandlerFunc(worker.HandleExecutePlan), tasks.TypeExecutePlan))
	return mux
}
