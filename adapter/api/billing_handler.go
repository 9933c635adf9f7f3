package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	billingApp "github.com/felixgeelhaar/keystone/internal/billing/application"
)

// BillingHandler serves subscriptions and the roles derived from them.
type BillingHandler struct {
	subscriptions *billingApp.SubscriptionService
	entitlements  *billingApp.EntitlementService
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(
	subscriptions *billingApp.SubscriptionService,
	entitlements *billingApp.EntitlementService,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		subscriptions: subscriptions,
		entitlements:  entitlements,
		logger:        logger,
	}
}

type rolesResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

type subscribeRequest struct {
	PackageID uuid.UUID `json:"package_id"`
}

type renewRequest struct {
	AdditionalDays int `json:"additional_days"`
}

// MyRoles handles GET /api/v1/me/roles. Roles are reconciled before they are
// returned, so a lapsed subscription is never reported.
func (h *BillingHandler) MyRoles(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	h.writeRoles(w, r, p.userID)
}

// MySubscriptions handles GET /api/v1/me/subscriptions.
func (h *BillingHandler) MySubscriptions(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	h.writeSubscriptions(w, r, p.userID)
}

// CancelMine handles POST /api/v1/me/subscriptions/{subscriptionID}/cancel.
func (h *BillingHandler) CancelMine(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	h.cancel(w, r, p.userID)
}

// UserRoles handles GET /api/v1/users/{userID}/roles.
func (h *BillingHandler) UserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	h.writeRoles(w, r, userID)
}

// UserSubscriptions handles GET /api/v1/users/{userID}/subscriptions.
func (h *BillingHandler) UserSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	h.writeSubscriptions(w, r, userID)
}

// Subscribe handles POST /api/v1/users/{userID}/subscriptions.
func (h *BillingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.subscriptions.Subscribe(r.Context(), billingApp.SubscribeCommand{
		UserID:    userID,
		PackageID: req.PackageID,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Renew handles POST /api/v1/users/{userID}/subscriptions/{subscriptionID}/renew.
func (h *BillingHandler) Renew(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	subscriptionID, ok := pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	var req renewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.subscriptions.Renew(r.Context(), billingApp.RenewCommand{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		AdditionalDays: req.AdditionalDays,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Cancel handles POST /api/v1/users/{userID}/subscriptions/{subscriptionID}/cancel.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	h.cancel(w, r, userID)
}

func (h *BillingHandler) cancel(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	subscriptionID, ok := pathID(w, r, "subscriptionID")
	if !ok {
		return
	}
	err := h.subscriptions.Cancel(r.Context(), billingApp.CancelCommand{
		UserID:         userID,
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BillingHandler) writeRoles(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	roles, err := h.entitlements.ReconcileAndGetRoles(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, rolesResponse{UserID: userID, Roles: roles})
}

func (h *BillingHandler) writeSubscriptions(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	subs, err := h.subscriptions.ListUserSubscriptions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if subs == nil {
		subs = []billingApp.SubscriptionDTO{}
	}
	writeJSON(w, http.StatusOK, subs)
}
