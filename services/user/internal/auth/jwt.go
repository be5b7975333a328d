package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/intelliguard/intelliguard/pkg/clock"
	"github.com/intelliguard/intelliguard/pkg/middleware"
)

// opaqueTokenBytes is the entropy of refresh and verification tokens.
const opaqueTokenBytes = 32

// Subject is what an access token asserts about its bearer.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Claims are the access token claims. The registered subject is the email.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSigner signs and verifies HS256 access tokens and generates opaque
// refresh token values.
type JWTSigner struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	clock     clock.Clock
}

// NewJWTSigner creates a signer. Token times come from clk.
func NewJWTSigner(secret, issuer string, accessTTL time.Duration, clk clock.Clock) *JWTSigner {
	return &JWTSigner{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		clock:     clk,
	}
}

// SignAccessToken creates a signed access token for sub.
func (s *JWTSigner) SignAccessToken(sub Subject) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		UserID: sub.UserID,
		Role:   sub.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.Email,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, issuer and expiry. Storage is never
// consulted.
func (s *JWTSigner) VerifyAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("access token has no user_id claim")
	}
	return claims, nil
}

// Validator adapts VerifyAccessToken to the shared auth middleware.
func (s *JWTSigner) Validator() middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		c, err := s.VerifyAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: c.UserID, Email: c.Subject, Role: c.Role}, nil
	}
}

// GenerateOpaqueToken returns 32 random bytes, base64url encoded.
func (s *JWTSigner) GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
