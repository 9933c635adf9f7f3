package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/auth"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// HeaderCorrelationID carries the caller's correlation id in and out.
const HeaderCorrelationID = "X-Correlation-ID"

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(token string) (*auth.AccessClaims, error)
}

type principal struct {
	userID uuid.UUID
	claims *auth.AccessClaims
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestContext attaches a correlation id and logs each request.
func withRequestContext(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(HeaderCorrelationID))
		w.Header().Set(HeaderCorrelationID, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.DebugContext(ctx, "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// requireAuth rejects requests without a valid bearer token.
func requireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			ctx := observability.WithUserID(r.Context(), userID.String())
			ctx = context.WithValue(ctx, principalKey{}, principal{userID: userID, claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole must run after requireAuth.
func requireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok || !p.claims.HasRole(role) {
			writeError(w, http.StatusForbidden, "requires role "+role)
			return
		}
		next.ServeHTTP(w, r)
	})
}
