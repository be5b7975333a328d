package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/intelliguard/intelliguard/pkg/config"
	"github.com/intelliguard/intelliguard/pkg/database"
	"github.com/intelliguard/intelliguard/pkg/tracing"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/password"
	"github.com/intelliguard/intelliguard/services/user/internal/service"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the user service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"USER_HTTP_PORT" envDefault:"8001"`

	Postgres           database.PostgresConfig
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"intelliguard-user"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Lockout and registration
	LockoutMaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration    time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	DefaultRole        string        `env:"DEFAULT_ROLE" envDefault:"VIEWER"`

	// Password hashing
	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`

	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`

	Tracing tracing.Config

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
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
	switch c.PasswordHasher {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("PASSWORD_HASHER must be %q or %q, got %q",
			password.AlgorithmBcrypt, password.AlgorithmArgon2id, c.PasswordHasher)
	}
	if c.TokenSweepInterval <= 0 {
		return fmt.Errorf("TOKEN_SWEEP_INTERVAL must be positive, got %s", c.TokenSweepInterval)
	}

	// Outside development the signing secret must be set explicitly and be strong.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}

	if err := c.Service().Validate(); err != nil {
		return fmt.Errorf("invalid identity settings: %w", err)
	}
	return nil
}

// Service returns the identity core settings.
func (c *Config) Service() service.Config {
	return service.Config{
		AccessTokenTTL:  c.JWTAccessExpiry,
		RefreshTokenTTL: c.JWTRefreshExpiry,
		Lockout: domain.LockoutPolicy{
			MaxAttempts: c.LockoutMaxAttempts,
			Duration:    c.LockoutDuration,
		},
		DefaultRole: c.DefaultRole,
	}
}
