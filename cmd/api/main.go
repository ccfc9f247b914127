package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/sip/config"
	"github.com/vultisig/sip/internal/api"
	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/graceful"
	"github.com/vultisig/sip/internal/health"
	"github.com/vultisig/sip/internal/logging"
	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/scheduler"
	"github.com/vultisig/sip/internal/service"
	"github.com/vultisig/sip/internal/storage/postgres"
	"github.com/vultisig/sip/internal/trade"
)

func main() {
	cfg, err := config.GetAPIConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("api stopped with error: %v", err)
	}
}

func run(cfg *config.APIConfig, logger *logrus.Logger) error {
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

	db, err := postgres.NewPostgresBackend(logger, cfg.Database.DSN, false)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
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

	var (
		schedulerMetrics metrics.SchedulerMetrics = metrics.Nil()
		executionMetrics metrics.ExecutionMetrics = metrics.Nil()
	)
	if cfg.Metrics.Enabled {
		schedulerMetrics = metrics.NewSchedulerMetrics()
		executionMetrics = metrics.NewExecutionMetrics()
	}

	registry := scheduler.NewRedisRegistry(logger, redisClient, cfg.Scheduler.RegistryKey)
	reconciler := scheduler.NewReconciler(logger, db, registry, cron, cfg.Scheduler.ReconcileInterval, schedulerMetrics)
	trader := trade.NewHTTPClient(logger, cfg.Trade)
	engine := execution.NewEngine(logger, db, trader, cfg.Execution, executionMetrics)

	planService, err := service.NewPlanService(logger, db, trader, reconciler, engine)
	if err != nil {
		return fmt.Errorf("failed to initialize plan service: %w", err)
	}

	server := api.NewServer(cfg.Server, planService, logger, cfg.Metrics.Enabled)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Start(egCtx)
	})
	eg.Go(func() error {
		return health.New(cfg.HealthPort, map[string]health.Checker{
			"postgres": db,
			"redis":    registry,
		}).Start(egCtx, logger)
	})
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, []string{
			metrics.ServiceHTTP,
			metrics.ServiceScheduler,
			metrics.ServiceExecution,
		}, logger)
		eg.Go(func() error {
			return metricsServer.Run(egCtx)
		})
	}

	return eg.Wait()
}
