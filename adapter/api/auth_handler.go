package api

import (
	"log/slog"
	"net/http"

	identityApp "github.com/felixgeelhaar/keystone/internal/identity/application"
)

// AuthHandler serves account registration and login.
type AuthHandler struct {
	service *identityApp.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service *identityApp.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, logger: logger}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var cmd identityApp.RegisterCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	if err := h.service.Register(r.Context(), cmd); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "verification_pending",
	})
}

// Verify handles POST /api/v1/auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.service.Verify(r.Context(), req.Token)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cmd identityApp.LoginCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	result, err := h.service.Login(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ForgotPassword handles POST /api/v1/auth/password/forgot. Unknown
// addresses get the same response as known ones.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword handles POST /api/v1/auth/password/reset.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var cmd identityApp.ResetPasswordCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), cmd); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
