package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment:    "development",
		HTTPPort:       8080,
		JWTSecret:      defaultJWTSecret,
		UserServiceURL: "http://user:8001",
		PaymentTopic:   "pending-payment-pool",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:8001", cfg.UserServiceURL)
	assert.Equal(t, "pending-payment-pool", cfg.PaymentTopic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, float64(100), cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PAYMENT_TOPIC", "payments")
	t.Setenv("USER_SERVICE_URL", "http://user.internal:9000")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "payments", cfg.PaymentTopic)
	assert.Equal(t, "http://user.internal:9000", cfg.UserServiceURL)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid development", func(*Config) {}, ""},
		{"production default secret", func(c *Config) { c.Environment = "production" }, "JWT_SECRET must be changed"},
		{"staging short secret", func(c *Config) {
			c.Environment = "staging"
			c.JWTSecret = "too-short"
		}, "at least 32 characters"},
		{"production strong secret", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "this-is-a-very-secure-secret-key-for-production-use-1234"
		}, ""},
		{"relative user url", func(c *Config) { c.UserServiceURL = "user:8001" }, "USER_SERVICE_URL"},
		{"empty topic", func(c *Config) { c.PaymentTopic = "" }, "PAYMENT_TOPIC"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "rate limit"},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
