package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is a server-side record of an opaque refresh token. Only the
// SHA-256 digest of the value is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// NewRefreshToken builds a token for userID expiring ttl after now.
func NewRefreshToken(id, userID, value string, now time.Time, ttl time.Duration) *RefreshToken {
	return &RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: HashToken(value),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// HashToken returns the hex SHA-256 digest stored for a token value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether the token is unrevoked and unexpired at now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Revoke marks the token revoked. RevokedAt is set only on the first call.
func (t *RefreshToken) Revoke(now time.Time) {
	if t.Revoked {
		return
	}
	t.Revoked = true
	t.RevokedAt = &now
}

// TokenBundle is returned by every successful register, login or refresh.
type TokenBundle struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	User         Profile `json:"user"`
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"
