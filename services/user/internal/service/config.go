package service

import (
	"fmt"
	"time"

	"github.com/intelliguard/intelliguard/services/user/internal/domain"
)

// Config is the read-only configuration of the identity core. It is built
// once at startup and passed by value.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Lockout         domain.LockoutPolicy
	DefaultRole     string
}

// DefaultConfig returns one hour access tokens, seven day refresh tokens,
// the default lockout policy and the VIEWER role.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Lockout:         domain.DefaultLockoutPolicy(),
		DefaultRole:     domain.RoleViewer,
	}
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	switch {
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("access token lifetime must be positive, got %s", c.AccessTokenTTL)
	case c.RefreshTokenTTL <= 0:
		return fmt.Errorf("refresh token lifetime must be positive, got %s", c.RefreshTokenTTL)
	case c.Lockout.MaxAttempts < 1:
		return fmt.Errorf("lockout max attempts must be at least 1, got %d", c.Lockout.MaxAttempts)
	case c.Lockout.Duration <= 0:
		return fmt.Errorf("lockout duration must be positive, got %s", c.Lockout.Duration)
	case c.DefaultRole == "":
		return fmt.Errorf("default role must be set")
	}
	return nil
}
