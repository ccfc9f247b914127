package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/vultisig/sip/internal/api"
	"github.com/vultisig/sip/internal/dispatch"
	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/logging"
	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/trade"
)

type SchedulerConfig struct {
	LogFormat  logging.LogFormat `mapstructure:"log_format" json:"log_format,omitempty"`
	LogLevel   string            `mapstructure:"log_level" json:"log_level,omitempty"`
	Database   DatabaseConfig    `mapstructure:"database" json:"database,omitempty"`
	Redis      RedisConfig       `mapstructure:"redis" json:"redis,omitempty"`
	Scheduler  ScheduleConfig    `mapstructure:"scheduler" json:"scheduler,omitempty"`
	Worker     dispatch.Config   `mapstructure:"worker" json:"worker,omitempty"`
	Execution  execution.Config  `mapstructure:"execution" json:"execution,omitempty"`
	Trade      trade.Config      `mapstructure:"trade" json:"trade,omitempty"`
	Metrics    metrics.Config    `mapstructure:"metrics" json:"metrics,omitempty"`
	HealthPort int               `mapstructure:"health_port" json:"health_port,omitempty"`
}

type APIConfig struct {
	LogFormat  logging.LogFormat `mapstructure:"log_format" json:"log_format,omitempty"`
	LogLevel   string            `mapstructure:"log_level" json:"log_level,omitempty"`
	Server     api.Config        `mapstructure:"server" json:"server"`
	Database   DatabaseConfig    `mapstructure:"database" json:"database,omitempty"`
	Redis      RedisConfig       `mapstructure:"redis" json:"redis,omitempty"`
	Scheduler  ScheduleConfig    `mapstructure:"scheduler" json:"scheduler,omitempty"`
	Execution  execution.Config  `mapstructure:"execution" json:"execution,omitempty"`
	Trade      trade.Config      `mapstructure:"trade" json:"trade,omitempty"`
	Metrics    metrics.Config    `mapstructure:"metrics" json:"metrics,omitempty"`
	HealthPort int               `mapstructure:"health_port" json:"health_port,omitempty"`
}

type ScheduleConfig struct {
	QueueName         string        `mapstructure:"queue_name" json:"queue_name,omitempty"`
	RegistryKey       string        `mapstructure:"registry_key" json:"registry_key,omitempty"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" json:"reconcile_interval,omitempty"`
	SyncInterval      time.Duration `mapstructure:"sync_interval" json:"sync_interval,omitempty"`
	CronOverride      string        `mapstructure:"cron_override" json:"cron_override,omitempty"`
	Location          string        `mapstructure:"location" json:"location,omitempty"`
}

func (c ScheduleConfig) LoadLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler location %q: %w", c.Location, err)
	}
	return loc, nil
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
}

type RedisConfig struct {
	ConnURI  string `mapstructure:"conn_uri" json:"conn_uri,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

// AsynqOpt returns the connection asynq uses; conn_uri wins over host/port.
func (c RedisConfig) AsynqOpt() (asynq.RedisConnOpt, error) {
	if c.ConnURI != "" {
		opt, err := asynq.ParseRedisURI(c.ConnURI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     c.Host + ":" + c.Port,
		Username: c.User,
		Password: c.Password,
		DB:       c.DB,
	}, nil
}

// Options returns the go-redis options for the trigger registry client.
func (c RedisConfig) Options() (*redis.Options, error) {
	if c.ConnURI != "" {
		opt, err := redis.ParseURL(c.ConnURI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis uri: %w", err)
		}
		return opt, nil
	}
	return &redis.Options{
		Addr:     c.Host + ":" + c.Port,
		Username: c.User,
		Password: c.Password,
		DB:       c.DB,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_format", string(logging.FormatText))
	v.SetDefault("log_level", "info")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.conn_uri", "")
	v.SetDefault("redis.user", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.queue_name", "sip-execution")
	v.SetDefault("scheduler.registry_key", "sip:triggers")
	v.SetDefault("scheduler.reconcile_interval", "10m")
	v.SetDefault("scheduler.sync_interval", "1m")
	v.SetDefault("scheduler.cron_override", "")
	v.SetDefault("scheduler.location", "UTC")

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.rate_per_second", 1)
	v.SetDefault("worker.job_attempts", 3)
	v.SetDefault("worker.job_backoff", "1s")
	v.SetDefault("worker.job_timeout", "0s")
	v.SetDefault("worker.result_retention", "24h")
	v.SetDefault("worker.shutdown_timeout", "30s")

	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.backoff_base", "1s")
	v.SetDefault("execution.retry_delay", "1s")

	v.SetDefault("trade.url", "")
	v.SetDefault("trade.token", "")
	v.SetDefault("trade.timeout", "5m")
	v.SetDefault("trade.http_retry_max", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 8088)
	v.SetDefault("metrics.token", "")

	v.SetDefault("health_port", 8089)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.token", "")
}

func newViper(configName string, paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func readInto(v *viper.Viper, cfg any) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fail to reading config file, %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode into struct, %w", err)
	}
	return nil
}

func GetSchedulerConfig() (*SchedulerConfig, error) {
	configName := os.Getenv("SIP_SCHEDULER_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadSchedulerConfig(configName)
}

// ReadSchedulerConfig reads configName from paths (default "."). A missing file
// is fine: defaults and environment variables still apply.
func ReadSchedulerConfig(configName string, paths ...string) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := readInto(newViper(configName, paths...), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func GetAPIConfig() (*APIConfig, error) {
	configName := os.Getenv("SIP_API_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadAPIConfig(configName)
}

func ReadAPIConfig(configName string, paths ...string) (*APIConfig, error) {
	var cfg APIConfig
	if err := readInto(newViper(configName, paths...), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.LogFormat.UnmarshalText([]byte(cfg.LogFormat)); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if cfg.Trade.URL == "" {
		return nil, fmt.Errorf("trade.url is required")
	}
	return &cfg, nil
}

func (c *SchedulerConfig) validate() error {
	if err := c.LogFormat.UnmarshalText([]byte(c.LogFormat)); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Trade.URL == "" {
		return fmt.Errorf("trade.url is required")
	}
	if c.Worker.JobAttempts < 1 {
		return fmt.Errorf("worker.job_attempts must be at least 1, got %d", c.Worker.JobAttempts)
	}
	// A job deadline inside the execution budget would cut trades off mid flight.
	budget := c.Execution.Budget(c.Trade.MaxCallDuration()) + jobTimeoutMargin
	switch {
	case c.Worker.JobTimeout <= 0:
		c.Worker.JobTimeout = budget
	case c.Worker.JobTimeout < budget:
		return fmt.Errorf("worker.job_timeout %s is shorter than the execution budget %s", c.Worker.JobTimeout, budget)
	}
	if _, err := c.Scheduler.LoadLocation(); err != nil {
		return err
	}
	return nil
}

const redactedValue = "***"

// jobTimeoutMargin covers plan loading and bookkeeping around the trade attempts.
const jobTimeoutMargin = time.Minute

// Redacted renders the config as YAML with credentials masked, for startup logs.
func (c SchedulerConfig) Redacted() ([]byte, error) {
	if c.Database.DSN != "" {
		c.Database.DSN = redactedValue
	}
	if c.Redis.ConnURI != "" {
		c.Redis.ConnURI = redactedValue
	}
	if c.Redis.Password != "" {
		c.Redis.Password = redactedValue
	}
	if c.Trade.Token != "" {
		c.Trade.Token = redactedValue
	}
	if c.Metrics.Token != "" {
		c.Metrics.Token = redactedValue
	}
	return yaml.Marshal(c)
}
