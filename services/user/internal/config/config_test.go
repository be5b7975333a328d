package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.Equal(t, "bcrypt", cfg.PasswordHasher)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, time.Hour, cfg.TokenSweepInterval)
	assert.Equal(t, "localhost", cfg.Postgres.Host)

	svc := cfg.Service()
	assert.Equal(t, time.Hour, svc.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, svc.RefreshTokenTTL)
	assert.Equal(t, 5, svc.Lockout.MaxAttempts)
	assert.Equal(t, 15*time.Minute, svc.Lockout.Duration)
	assert.Equal(t, "VIEWER", svc.DefaultRole)
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"JWT_ACCESS_TOKEN_EXPIRY": "30m",
		"LOCKOUT_MAX_ATTEMPTS":    "3",
		"LOCKOUT_DURATION":        "1h",
		"DEFAULT_ROLE":            "ANALYST",
		"PASSWORD_HASHER":         "argon2id",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
		"POSTGRES_HOST":           "db",
	})

	cfg, err := Load()
	require.NoError(t, err)

	svc := cfg.Service()
	assert.Equal(t, 30*time.Minute, svc.AccessTokenTTL)
	assert.Equal(t, 3, svc.Lockout.MaxAttempts)
	assert.Equal(t, time.Hour, svc.Lockout.Duration)
	assert.Equal(t, "ANALYST", svc.DefaultRole)
	assert.Equal(t, "argon2id", cfg.PasswordHasher)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "db", cfg.Postgres.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"port", map[string]string{"USER_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"hasher", map[string]string{"PASSWORD_HASHER": "md5"}, "PASSWORD_HASHER"},
		{"lockout", map[string]string{"LOCKOUT_MAX_ATTEMPTS": "0"}, "lockout max attempts"},
		{"ttl", map[string]string{"JWT_REFRESH_TOKEN_EXPIRY": "0s"}, "refresh token lifetime"},
		{"sweep", map[string]string{"TOKEN_SWEEP_INTERVAL": "0s"}, "TOKEN_SWEEP_INTERVAL"},
		{"unparseable duration", map[string]string{"LOCKOUT_DURATION": "soon"}, "load user config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)
			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
		"JWT_SECRET":  "change-this-to-a-secure-secret",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "change-this-to-a-secure-secret", cfg.JWTSecret)
}

func TestLoad_NonDevelopmentSecrets(t *testing.T) {
	tests := []struct {
		env, secret, wantErr string
	}{
		{"production", "change-this-to-a-secure-secret", "JWT_SECRET must be explicitly set"},
		{"staging", "change-this-to-a-secure-secret", "JWT_SECRET must be explicitly set"},
		{"production", "short-but-not-default-secret", "JWT_SECRET must be at least 32 characters"},
		{"production", "this-is-a-very-secure-secret-key-for-production-use-1234", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.secret, func(t *testing.T) {
			setEnvs(t, map[string]string{"ENVIRONMENT": tt.env, "JWT_SECRET": tt.secret})

			cfg, err := Load()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.secret, cfg.JWTSecret)
				return
			}
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
