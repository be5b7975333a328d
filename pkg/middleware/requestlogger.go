package middleware

import (
	"log/slog"
	"net/http"

	"github.com/intelliguard/intelliguard/pkg/logger"
)

// UserIDHeader is set by the gateway for upstream services.
const UserIDHeader = "X-User-ID"

// RequestLogger stores a logger enriched with correlation_id, user_id, role
// and trace ids in the request context. Mount it after RequestLogging and
// Tracing, and inside Auth when user_id should come from verified claims.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if logger.UserIDFromContext(ctx) == "" {
				if id := UserIDFromContext(ctx); id != "" {
					ctx = logger.WithUserID(ctx, id)
				} else if id := r.Header.Get(UserIDHeader); id != "" {
					ctx = logger.WithUserID(ctx, id)
				}
			}

			l := logger.WithContext(ctx, base)
			if role := RoleFromContext(ctx); role != "" {
				l = l.With(slog.String("role", role))
			}
			ctx = logger.NewContext(ctx, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
