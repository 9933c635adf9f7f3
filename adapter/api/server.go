// Package api exposes the entitlement engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	identityDomain "github.com/felixgeelhaar/keystone/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

// AdminRole guards catalog management and other users' subscriptions.
const AdminRole = "Admin"

// Server is the HTTP API server.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handlers groups the route handlers and the endpoints served alongside them.
type Handlers struct {
	Auth    *AuthHandler
	Catalog *CatalogHandler
	Billing *BillingHandler
	Tokens  TokenParser
	Health  http.Handler
	Metrics http.Handler
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, h Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.registerRoutes(h)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      withRequestContext(s.mux, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes(h Handlers) {
	if h.Health != nil {
		s.mux.Handle("GET /health", h.Health)
	}
	if h.Metrics != nil {
		s.mux.Handle("GET /metrics", h.Metrics)
	}

	authenticated := requireAuth(h.Tokens)
	admin := func(next http.HandlerFunc) http.Handler {
		return authenticated(requireRole(AdminRole, next))
	}

	// Accounts
	s.mux.HandleFunc("POST /api/v1/auth/register", h.Auth.Register)
	s.mux.HandleFunc("POST /api/v1/auth/verify", h.Auth.Verify)
	s.mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	s.mux.HandleFunc("POST /api/v1/auth/password/forgot", h.Auth.ForgotPassword)
	s.mux.HandleFunc("POST /api/v1/auth/password/reset", h.Auth.ResetPassword)

	// Catalog
	s.mux.HandleFunc("GET /api/v1/packages", h.Catalog.ListPackages)
	s.mux.HandleFunc("GET /api/v1/packages/{packageID}", h.Catalog.GetPackage)
	s.mux.HandleFunc("GET /api/v1/packages/{packageID}/promotions", h.Catalog.ListPromotions)
	s.mux.Handle("POST /api/v1/packages", admin(h.Catalog.CreatePackage))
	s.mux.Handle("PUT /api/v1/packages/{packageID}", admin(h.Catalog.UpdatePackage))
	s.mux.Handle("DELETE /api/v1/packages/{packageID}", admin(h.Catalog.DeletePackage))
	s.mux.Handle("POST /api/v1/packages/{packageID}/promotions", admin(h.Catalog.CreatePromotion))
	s.mux.Handle("PUT /api/v1/promotions/{promotionID}", admin(h.Catalog.UpdatePromotion))
	s.mux.Handle("DELETE /api/v1/promotions/{promotionID}", admin(h.Catalog.DeletePromotion))

	// Subscriptions and roles of the caller
	s.mux.Handle("GET /api/v1/me/roles", authenticated(http.HandlerFunc(h.Billing.MyRoles)))
	s.mux.Handle("GET /api/v1/me/subscriptions", authenticated(http.HandlerFunc(h.Billing.MySubscriptions)))
	s.mux.Handle("POST /api/v1/me/subscriptions/{subscriptionID}/cancel", authenticated(http.HandlerFunc(h.Billing.CancelMine)))

	// Administration of any user
	s.mux.Handle("GET /api/v1/users/{userID}/roles", admin(h.Billing.UserRoles))
	s.mux.Handle("GET /api/v1/users/{userID}/subscriptions", admin(h.Billing.UserSubscriptions))
	s.mux.Handle("POST /api/v1/users/{userID}/subscriptions", admin(h.Billing.Subscribe))
	s.mux.Handle("POST /api/v1/users/{userID}/subscriptions/{subscriptionID}/renew", admin(h.Billing.Renew))
	s.mux.Handle("POST /api/v1/users/{userID}/subscriptions/{subscriptionID}/cancel", admin(h.Billing.Cancel))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// writeDomainError maps an error kind onto a status. Unclassified errors are
// logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, identityDomain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, sharedDomain.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sharedDomain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sharedDomain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sharedDomain.ErrTransient):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
