package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/tasks"
)

// JobOptions are applied to every job a trigger fires.
type JobOptions struct {
	Queue     string
	Attempts  int
	Timeout   time.Duration
	Retention time.Duration
}

func (o JobOptions) asynqOptions() []asynq.Option {
	queue := o.Queue
	if queue == "" {
		queue = tasks.DefaultQueueName
	}
	maxRetry := o.Attempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
	}
	if o.Timeout > 0 {
		opts = append(opts, asynq.Timeout(o.Timeout))
	}
	if o.Retention > 0 {
		opts = append(opts, asynq.Retention(o.Retention))
	}
	return opts
}

// ConfigProvider exposes the registry to asynq's PeriodicTaskManager, which
// polls it and (un)registers cron entries whenever the trigger set changes.
type ConfigProvider struct {
	logger   *logrus.Logger
	registry Registry
	opts     JobOptions
	timeout  time.Duration
}

var _ asynq.PeriodicTaskConfigProvider = (*ConfigProvider)(nil)

func NewConfigProvider(logger *logrus.Logger, registry Registry, opts JobOptions) *ConfigProvider {
	return &ConfigProvider{
		logger:   logger.WithField("pkg", "scheduler.ConfigProvider").Logger,
		registry: registry,
		opts:     opts,
		timeout:  10 * time.Second,
	}
}

func (p *ConfigProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	triggers, err := p.registry.ListTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(triggers))
	for _, trigger := range triggers {
		if trigger.Cronspec == "" {
			p.logger.WithField("trigger_id", trigger.ID).Warn("skip trigger without cronspec")
			continue
		}
		task, err := tasks.NewExecutePlanTask(trigger.Payload, p.opts.asynqOptions()...)
		if err != nil {
			p.logger.WithError(err).WithField("trigger_id", trigger.ID).Warn("skip trigger with bad payload")
			continue
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: trigger.Cronspec,
			Task:     task,
		})
	}
	return configs, nil
}

// NewPeriodicTaskManager wires the provider to an asynq scheduler running in location.
func NewPeriodicTaskManager(
	logger *logrus.Logger,
	redisOpt asynq.RedisConnOpt,
	provider asynq.PeriodicTaskConfigProvider,
	location *time.Location,
	syncInterval time.Duration,
) (*asynq.PeriodicTaskManager, error) {
	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisOpt,
		PeriodicTaskConfigProvider: provider,
		SyncInterval:               syncInterval,
		SchedulerOpts: &asynq.SchedulerOpts{
			Logger:   logger,
			Location: location,
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					logger.WithError(err).Error("failed to enqueue plan execution")
					return
				}
				logger.WithFields(logrus.Fields{
					"task_id": info.ID,
					"queue":   info.Queue,
				}).Debug("plan execution enqueued")
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create periodic task manager: %w", err)
	}
	return mgr, nil
}
