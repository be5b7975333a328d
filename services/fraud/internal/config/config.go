package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/intelliguard/intelliguard/pkg/config"
	"github.com/intelliguard/intelliguard/pkg/database"
	"github.com/intelliguard/intelliguard/pkg/tracing"
)

// Idempotency store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all configuration for the fraud-scoring service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"FRAUD_HTTP_PORT" envDefault:"8002"`

	KafkaBrokers  []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	PaymentTopic  string        `env:"PAYMENT_TOPIC" envDefault:"pending-payment-pool"`
	ConsumerGroup string        `env:"FRAUD_CONSUMER_GROUP" envDefault:"fraud-group"`
	RetryBackoff  time.Duration `env:"CONSUMER_RETRY_BACKOFF" envDefault:"200ms"`
	DLQEnabled    bool          `env:"DLQ_ENABLED" envDefault:"true"`

	// Processed event ids are kept for IdempotencyTTL. The memory store does
	// not survive restarts and is meant for local runs.
	IdempotencyStore string        `env:"IDEMPOTENCY_STORE" envDefault:"redis"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	Redis            database.RedisConfig

	Tracing tracing.Config

	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
	PprofAllowedCIDRs   []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load fraud config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}
	if c.PaymentTopic == "" {
		return fmt.Errorf("PAYMENT_TOPIC must be set")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("FRAUD_CONSUMER_GROUP must be set")
	}
	if c.IdempotencyStore != StoreRedis && c.IdempotencyStore != StoreMemory {
		return fmt.Errorf("IDEMPOTENCY_STORE must be %q or %q, got %q", StoreRedis, StoreMemory, c.IdempotencyStore)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive, got %s", c.IdempotencyTTL)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("CONSUMER_RETRY_BACKOFF must not be negative, got %s", c.RetryBackoff)
	}
	return nil
}
