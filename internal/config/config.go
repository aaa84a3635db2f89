package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Process settings come from the environment or an optional bridge.yaml.
// Endpoint credentials and intervals live in the state store; the Bootstrap
// keys only seed them at startup.

type Config struct {
	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBDSN      string `mapstructure:"DB_DSN"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`

	ServerPort string `mapstructure:"SERVER_PORT"`
	IsLocalDev bool   `mapstructure:"IS_LOCAL_DEV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	OtelExporter string `mapstructure:"OTEL_EXPORTER"`
	OtelEndpoint string `mapstructure:"OTEL_ENDPOINT"`

	AWSRegion          string `mapstructure:"AWS_REGION"`
	AWSEndpoint        string `mapstructure:"AWS_ENDPOINT"`
	NotifySQSQueueURL  string `mapstructure:"NOTIFY_SQS_QUEUE_URL"`
	TriggerSQSQueueURL string `mapstructure:"TRIGGER_SQS_QUEUE_URL"`
	AlertEmailFrom     string `mapstructure:"ALERT_EMAIL_FROM"`
	AlertEmailTo       string `mapstructure:"ALERT_EMAIL_TO"`
	SlackWebhookURL    string `mapstructure:"SLACK_WEBHOOK_URL"`

	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
	PullPageSize      int           `mapstructure:"PULL_PAGE_SIZE"`
	PushBatchLimit    int           `mapstructure:"PUSH_BATCH_LIMIT"`
	SchedulerTick     time.Duration `mapstructure:"SCHEDULER_TICK"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	WorkerQueueSize   int           `mapstructure:"WORKER_QUEUE_SIZE"`
	SingleFlight      bool          `mapstructure:"SINGLE_FLIGHT"`

	Bootstrap `mapstructure:",squash"`
}

// Bootstrap values are applied once at startup as a partial endpoint config update.
type Bootstrap struct {
	OnPremHost          string `mapstructure:"ONPREM_HOST"`
	OnPremUsername      string `mapstructure:"ONPREM_USERNAME"`
	OnPremPassword      string `mapstructure:"ONPREM_PASSWORD"`
	CloudURL            string `mapstructure:"CLOUD_URL"`
	CloudUsername       string `mapstructure:"CLOUD_USERNAME"`
	CloudPassword       string `mapstructure:"CLOUD_PASSWORD"`
	PullIntervalMinutes int    `mapstructure:"PULL_INTERVAL_MINUTES"`
	PushIntervalMinutes int    `mapstructure:"PUSH_INTERVAL_MINUTES"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	v := viper.New()

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_HOST", "db")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "timebridge")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("IS_LOCAL_DEV", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER", "none")
	v.SetDefault("OTEL_ENDPOINT", "jaeger:4317")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT", "")
	v.SetDefault("NOTIFY_SQS_QUEUE_URL", "")
	v.SetDefault("TRIGGER_SQS_QUEUE_URL", "")
	v.SetDefault("ALERT_EMAIL_FROM", "")
	v.SetDefault("ALERT_EMAIL_TO", "")
	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("PULL_PAGE_SIZE", 100)
	v.SetDefault("PUSH_BATCH_LIMIT", 500)
	v.SetDefault("SCHEDULER_TICK", "1s")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_QUEUE_SIZE", 16)
	v.SetDefault("SINGLE_FLIGHT", false)

	// AutomaticEnv only reaches Unmarshal for keys viper already knows about.
	for _, key := range []string{
		"ONPREM_HOST", "ONPREM_USERNAME", "ONPREM_PASSWORD",
		"CLOUD_URL", "CLOUD_USERNAME", "CLOUD_PASSWORD",
	} {
		v.SetDefault(key, "")
	}
	// -1 leaves the stored interval untouched.
	v.SetDefault("PULL_INTERVAL_MINUTES", -1)
	v.SetDefault("PUSH_INTERVAL_MINUTES", -1)

	v.SetConfigName("bridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("reading config file: %w", err)
		}
		err = nil
	}

	// Read in environment variables that match the keys.
	v.AutomaticEnv()

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decoding config: %w", err)
	}
	return config, config.Validate()
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.PullPageSize <= 0 {
		return fmt.Errorf("PULL_PAGE_SIZE must be positive, got %d", c.PullPageSize)
	}
	if c.PushBatchLimit <= 0 {
		return fmt.Errorf("PUSH_BATCH_LIMIT must be positive, got %d", c.PushBatchLimit)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
}

const defaultSQLiteDSN = "timebridge.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// DSN returns DB_DSN when set, otherwise a driver-specific default. For
// postgres the default is assembled from the discrete DB_* settings.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == DriverPostgres {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
	return defaultSQLiteDSN
}
