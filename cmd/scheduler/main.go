package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/sip/config"
	"github.com/vultisig/sip/internal/dispatch"
	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/graceful"
	"github.com/vultisig/sip/internal/health"
	"github.com/vultisig/sip/internal/logging"
	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/scheduler"
	"github.com/vultisig/sip/internal/storage/postgres"
	"github.com/vultisig/sip/internal/trade"
)

func main() {
	cfg, err := config.GetSchedulerConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if dump, er := cfg.Redacted(); er == nil {
		logger.Debugf("scheduler config:\n%s", dump)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("scheduler stopped with error: %v", err)
	}
	logger.Info("scheduler stopped")
}

func run(cfg *config.SchedulerConfig, logger *logrus.Logger) error {
	ctx, stop := graceful.Context(context.Background())
	defer stop()

	location, err := cfg.Scheduler.LoadLocation()
	if err != nil {
		return err
	}
	cron, err := scheduler.NewCronBuilder(location, cfg.Scheduler.CronOverride)
	if err != nil {
		return err
	}
	if cfg.Scheduler.CronOverride != "" {
		logger.Warnf("cron override %q replaces every plan cadence", cfg.Scheduler.CronOverride)
	}

	db, err := postgres.NewPostgresBackend(logger, cfg.Database.DSN, true)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	redisOpts, err := cfg.Redis.Options()
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close redis client")
		}
	}()

	asynqOpt, err := cfg.Redis.AsynqOpt()
	if err != nil {
		return err
	}

	var (
		schedulerMetrics metrics.SchedulerMetrics = metrics.Nil()
		executionMetrics metrics.ExecutionMetrics = metrics.Nil()
		workerMetrics    metrics.WorkerMetrics    = metrics.Nil()
	)
	if cfg.Metrics.Enabled {
		schedulerMetrics = metrics.NewSchedulerMetrics()
		executionMetrics = metrics.NewExecutionMetrics()
		workerMetrics = metrics.NewWorkerMetrics()
	}

	registry := scheduler.NewRedisRegistry(logger, redisClient, cfg.Scheduler.RegistryKey)
	reconciler := scheduler.NewReconciler(
		logger,
		db,
		registry,
		cron,
		cfg.Scheduler.ReconcileInterval,
		schedulerMetrics,
	)

	engine := execution.NewEngine(
		logger,
		db,
		trade.NewHTTPClient(logger, cfg.Trade),
		cfg.Execution,
		executionMetrics,
	)
	worker := dispatch.NewWorker(logger, db, engine, reconciler, workerMetrics)

	srv := dispatch.NewServer(logger, asynqOpt, cfg.Scheduler.QueueName, cfg.Worker)
	mux := dispatch.NewServeMux(worker, cfg.Worker.RatePerSecond, workerMetrics)

	provider := scheduler.NewConfigProvider(logger, registry, scheduler.JobOptions{
		Queue:     cfg.Scheduler.QueueName,
		Attempts:  cfg.Worker.JobAttempts,
		Timeout:   cfg.Worker.JobTimeout,
		Retention: cfg.Worker.ResultRetention,
	})
	mgr, err := scheduler.NewPeriodicTaskManager(logger, asynqOpt, provider, cron.Location(), cfg.Scheduler.SyncInterval)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return reconciler.Run(egCtx)
	})
	eg.Go(func() error {
		if err := srv.Start(mux); err != nil {
			return fmt.Errorf("failed to start dispatch server: %w", err)
		}
		<-egCtx.Done()
		logger.Info("got exit signal, waiting for the in-flight job...")
		srv.Shutdown()
		return nil
	})
	eg.Go(func() error {
		if err := mgr.Start(); err != nil {
			return fmt.Errorf("failed to start periodic task manager: %w", err)
		}
		<-egCtx.Done()
		mgr.Shutdown()
		return nil
	})
	eg.Go(func() error {
		return health.New(cfg.HealthPort, map[string]health.Checker{
			"postgres": db,
			"redis":    registry,
		}).Start(egCtx, logger)
	})
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, []string{
			metrics.ServiceScheduler,
			metrics.ServiceExecution,
			metrics.ServiceWorker,
		}, logger)
		eg.Go(func() error {
			return metricsServer.Run(egCtx)
		})
	}

	return eg.Wait()
}
