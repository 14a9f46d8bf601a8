package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Sink kinds.
const (
	SinkPostHog = "posthog"
	SinkKafka   = "kafka"
	SinkLog     = "log"
)

// Config is the full agent configuration.
type Config struct {
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8790"`
	AdminToken string `env:"ADMIN_TOKEN"`

	Storage      StorageConfig
	Redis        RedisConfig
	Sink         SinkConfig
	Connectivity ConnectivityConfig
	Breaker      BreakerConfig
	Log          LogConfig
	Otel         OtelConfig
}

// StorageConfig selects and locates the local durable store.
type StorageConfig struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"beacon.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// RedisConfig configures the Redis client used by the redis storage driver.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	KeyPrefix    string        `env:"REDIS_KEY_PREFIX" envDefault:"beacon:"`
}

// SinkConfig selects the delivery target.
type SinkConfig struct {
	Kind           string        `env:"SINK" envDefault:"log"`
	PostHogAPIKey  string        `env:"POSTHOG_API_KEY"`
	PostHogHost    string        `env:"POSTHOG_HOST" envDefault:"https://app.posthog.com"`
	PostHogTimeout time.Duration `env:"POSTHOG_TIMEOUT" envDefault:"10s"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string        `env:"KAFKA_TOPIC" envDefault:"telemetry"`
}

// ConnectivityConfig chooses the host signal adapters. Both may be active.
type ConnectivityConfig struct {
	StatusFile    string        `env:"CONNECTIVITY_FILE"`
	ProbeURL      string        `env:"PROBE_URL"`
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`
	StartOnline   bool          `env:"START_ONLINE" envDefault:"true"`
}

// BreakerConfig tunes the sink circuit breaker.
type BreakerConfig struct {
	Threshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	Cooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"1m"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	File   string `env:"LOG_FILE"`
}

// OtelConfig enables trace export.
type OtelConfig struct {
	Endpoint string `env:"OTEL_ENDPOINT"`
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// FromEnv builds a Config from BEACON_* environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "BEACON_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements the tags cannot express.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite storage requires BEACON_SQLITE_PATH")
		}
	case StorageRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis storage requires BEACON_REDIS_URL")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires BEACON_POSTGRES_DSN")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Sink.Kind {
	case SinkPostHog:
		if c.Sink.PostHogAPIKey == "" {
			return fmt.Errorf("posthog sink requires BEACON_POSTHOG_API_KEY")
		}
	case SinkKafka:
		if len(c.Sink.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka sink requires BEACON_KAFKA_BROKERS")
		}
	case SinkLog:
	default:
		return fmt.Errorf("unknown sink %q", c.Sink.Kind)
	}
	return nil
}
