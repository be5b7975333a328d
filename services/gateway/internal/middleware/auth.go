package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/httputil"
	"github.com/intelliguard/intelliguard/pkg/logger"
	pkgmiddleware "github.com/intelliguard/intelliguard/pkg/middleware"
)

// Identity headers set for upstream services. Inbound values are always
// stripped so clients cannot forge them.
const (
	HeaderUserID    = pkgmiddleware.UserIDHeader
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

var trustedHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}

// publicRoutes are reachable without a bearer token.
var publicRoutes = []struct {
	method string
	path   string
	prefix bool
}{
	{method: http.MethodPost, path: "/api/v1/auth/register"},
	{method: http.MethodPost, path: "/api/v1/auth/login"},
	{method: http.MethodPost, path: "/api/v1/auth/refresh"},
	{method: http.MethodPost, path: "/api/v1/auth/verify-email"},
	{method: http.MethodGet, path: "/health/", prefix: true},
}

func isPublicRoute(method, path string) bool {
	if method == http.MethodOptions {
		return true
	}
	for _, route := range publicRoutes {
		if method != route.method {
			continue
		}
		if path == route.path || (route.prefix && strings.HasPrefix(path, route.path)) {
			return true
		}
	}
	return false
}

// accessClaims mirrors the claims minted by the user service.
type accessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenParser verifies HS256 access tokens issued by the user service.
type TokenParser struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenParser creates a parser for tokens signed with secret by issuer.
func NewTokenParser(secret, issuer string) *TokenParser {
	return &TokenParser{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Parse verifies raw and returns its identity claims.
func (p *TokenParser) Parse(raw string) (*pkgmiddleware.Claims, error) {
	var c accessClaims
	if _, err := p.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}); err != nil {
		return nil, err
	}
	if c.UserID == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return &pkgmiddleware.Claims{UserID: c.UserID, Email: c.Subject, Role: c.Role}, nil
}

// JWTAuth verifies the bearer token of every non-public request, stores the
// claims in the context and forwards them upstream as identity headers.
func JWTAuth(p *TokenParser, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range trustedHeaders {
				r.Header.Del(h)
			}

			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := pkgmiddleware.BearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing or malformed bearer token"), l)
				return
			}

			claims, err := p.Parse(token)
			if err != nil {
				l.WarnContext(r.Context(), "invalid JWT token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), l)
				return
			}

			r.Header.Set(HeaderUserID, claims.UserID)
			r.Header.Set(HeaderUserEmail, claims.Email)
			r.Header.Set(HeaderUserRole, claims.Role)

			ctx := pkgmiddleware.WithClaims(r.Context(), claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
