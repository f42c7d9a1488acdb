package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/contentplan-backend/internal/data/db"
	"github.com/yungbote/contentplan-backend/internal/platform/envutil"
	"github.com/yungbote/contentplan-backend/internal/services"
)

type Config struct {
	LogMode      string   `yaml:"log_mode"`
	HTTPAddr     string   `yaml:"http_addr"`
	ServiceName  string   `yaml:"service_name"`
	CORSOrigins  []string `yaml:"cors_origins"`
	ChatProvider string   `yaml:"chat_provider"`

	DB       db.Config      `yaml:"db"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Strategy StrategyConfig `yaml:"strategy"`
	Redis    RedisConfig    `yaml:"redis"`
}

type JobsConfig struct {
	Dispatch            string `yaml:"dispatch"`
	Concurrency         int    `yaml:"concurrency"`
	PollIntervalMS      int    `yaml:"poll_interval_ms"`
	MaxAttempts         int    `yaml:"max_attempts"`
	RetryBaseSeconds    int    `yaml:"retry_base_seconds"`
	StaleRunningMinutes int    `yaml:"stale_running_minutes"`
	QueueMetricsSeconds int    `yaml:"queue_metrics_seconds"`
}

type StrategyConfig struct {
	InterBatchDelayMS  int  `yaml:"inter_batch_delay_ms"`
	NameAttemptCeiling int  `yaml:"name_attempt_ceiling"`
	AutoStartCreator   bool `yaml:"auto_start_creator"`
	LockTTLSeconds     int  `yaml:"lock_ttl_seconds"`
	RandomSeed         int  `yaml:"random_seed"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

func defaultConfig() Config {
	return Config{
		LogMode:      "development",
		HTTPAddr:     ":8080",
		ServiceName:  "contentplan",
		ChatProvider: services.ChatProviderOpenAI,
		DB: db.Config{
			Driver:     db.DriverPostgres,
			SQLitePath: "contentplan.db",
		},
		Jobs: JobsConfig{
			Dispatch:            services.DispatchWorker,
			Concurrency:         4,
			PollIntervalMS:      1000,
			MaxAttempts:         5,
			RetryBaseSeconds:    15,
			StaleRunningMinutes: 30,
			QueueMetricsSeconds: 15,
		},
		Strategy: StrategyConfig{
			InterBatchDelayMS:  2000,
			NameAttemptCeiling: 10,
			LockTTLSeconds:     600,
		},
		Redis: RedisConfig{Prefix: "contentplan:"},
	}
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment. Environment variables win over the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.HTTPAddr = envutil.String("HTTP_ADDR", c.HTTPAddr)
	c.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.ServiceName)
	if raw := envutil.String("CORS_ORIGINS", ""); raw != "" {
		c.CORSOrigins = splitList(raw)
	}
	c.ChatProvider = envutil.String("CHAT_PROVIDER", c.ChatProvider)

	c.DB.Driver = envutil.String("DB_DRIVER", c.DB.Driver)
	c.DB.DSN = envutil.String("POSTGRES_DSN", c.DB.DSN)
	c.DB.SQLitePath = envutil.String("SQLITE_PATH", c.DB.SQLitePath)
	c.DB.MaxOpen = envutil.Int("DB_MAX_OPEN_CONNS", c.DB.MaxOpen)

	c.Jobs.Dispatch = envutil.String("JOB_DISPATCH", c.Jobs.Dispatch)
	c.Jobs.Concurrency = envutil.Int("WORKER_CONCURRENCY", c.Jobs.Concurrency)
	c.Jobs.PollIntervalMS = envutil.Int("WORKER_POLL_INTERVAL_MS", c.Jobs.PollIntervalMS)
	c.Jobs.MaxAttempts = envutil.Int("JOB_MAX_ATTEMPTS", c.Jobs.MaxAttempts)
	c.Jobs.RetryBaseSeconds = envutil.Int("JOB_RETRY_BASE_SECONDS", c.Jobs.RetryBaseSeconds)
	c.Jobs.StaleRunningMinutes = envutil.Int("JOB_STALE_RUNNING_MINUTES", c.Jobs.StaleRunningMinutes)
	c.Jobs.QueueMetricsSeconds = envutil.Int("JOB_QUEUE_METRICS_SECONDS", c.Jobs.QueueMetricsSeconds)

	c.Strategy.InterBatchDelayMS = envutil.Int("STRATEGY_INTER_BATCH_DELAY_MS", c.Strategy.InterBatchDelayMS)
	c.Strategy.NameAttemptCeiling = envutil.Int("STRATEGY_NAME_ATTEMPT_CEILING", c.Strategy.NameAttemptCeiling)
	c.Strategy.AutoStartCreator = envutil.Bool("STRATEGY_AUTO_START_CREATOR", c.Strategy.AutoStartCreator)
	c.Strategy.LockTTLSeconds = envutil.Int("STRATEGY_LOCK_TTL_SECONDS", c.Strategy.LockTTLSeconds)
	c.Strategy.RandomSeed = envutil.Int("STRATEGY_RANDOM_SEED", c.Strategy.RandomSeed)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Prefix = envutil.String("REDIS_PREFIX", c.Redis.Prefix)
}

func (c Config) validate() error {
	switch c.Jobs.Dispatch {
	case services.DispatchWorker, services.DispatchTemporal, services.DispatchInline:
	default:
		return fmt.Errorf("JOB_DISPATCH must be worker, temporal or inline (got %q)", c.Jobs.Dispatch)
	}
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite (got %q)", c.DB.Driver)
	}
	if c.Strategy.NameAttemptCeiling < 1 {
		return fmt.Errorf("STRATEGY_NAME_ATTEMPT_CEILING must be positive")
	}
	return nil
}

// interBatchDelay is zero for inline dispatch, which runs batches back to back.
func (c Config) interBatchDelay() time.Duration {
	if c.Jobs.Dispatch == services.DispatchInline {
		return 0
	}
	return time.Duration(c.Strategy.InterBatchDelayMS) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
