package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/adapter/api"
	internalApp "github.com/felixgeelhaar/keystone/internal/app"
	"github.com/felixgeelhaar/keystone/internal/app/apptest"
	billingApp "github.com/felixgeelhaar/keystone/internal/billing/application"
	catalogQueries "github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

type harness struct {
	t         *testing.T
	container *internalApp.Container
	handler   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := apptest.NewContainer(t)
	srv := api.NewServer(api.DefaultServerConfig(), api.NewHandlers(c), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &harness{t: t, container: c, handler: srv.Handler()}
}

func (h *harness) token(userID uuid.UUID, roles ...string) string {
	h.t.Helper()
	tok, _, err := h.container.JWTIssuer.Issue(userID, "someone@example.com", roles, time.Now())
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_HealthAndCorrelation(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.HeaderCorrelationID, "corr-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-123", rec.Header().Get(api.HeaderCorrelationID))
}

func TestServer_ListPackagesIsPublic(t *testing.T) {
	h := newHarness(t)
	apptest.SeedPackage(t, h.container, "Coaching", "Coach", 30)

	rec := h.do(http.MethodGet, "/api/v1/packages?active=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	packages := decode[[]catalogQueries.PackageDTO](t, rec)
	require.Len(t, packages, 1)
	assert.Equal(t, "Coach", packages[0].AssociatedRole)
}

func TestServer_GetPackage(t *testing.T) {
	h := newHarness(t)

	t.Run("invalid id", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/v1/packages/nope", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/v1/packages/"+uuid.NewString(), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_CatalogManagementRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{
		"name":            "Nutrition",
		"price":           "19.00",
		"duration_days":   14,
		"associated_role": "Nutritionist",
	}

	rec := h.do(http.MethodPost, "/api/v1/packages", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/packages", "garbage", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/packages", h.token(uuid.New(), "Coach"), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := h.token(uuid.New(), api.AdminRole)
	rec = h.do(http.MethodPost, "/api/v1/packages", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]uuid.UUID](t, rec)
	id := created["id"].String()

	rec = h.do(http.MethodPost, "/api/v1/packages/"+id+"/promotions", admin, map[string]any{
		"discount_type":  "percentage",
		"discount_value": "10",
		"valid_from":     time.Now().Add(-time.Hour),
		"valid_to":       time.Now().Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/packages/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pkg := decode[catalogQueries.PackageDTO](t, rec)
	assert.True(t, decimal.RequireFromString("17.10").Equal(pkg.EffectivePrice), pkg.EffectivePrice.String())

	rec = h.do(http.MethodGet, "/api/v1/packages/"+id+"/promotions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalogQueries.PromotionDTO](t, rec), 1)

	rec = h.do(http.MethodDelete, "/api/v1/packages/"+id, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_CreatePackageValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/packages", h.token(uuid.New(), api.AdminRole), map[string]any{
		"name":          "Nutrition",
		"price":         "19.00",
		"duration_days": 14,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/packages", h.token(uuid.New(), api.AdminRole), map[string]any{
		"unexpected": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubscriptionLifecycle(t *testing.T) {
	h := newHarness(t)
	packageID := apptest.SeedPackage(t, h.container, "Coaching", "Coach", 30)
	userID := apptest.SeedUser(t, h.container, "member@example.com")
	admin := h.token(uuid.New(), api.AdminRole)
	member := h.token(userID)

	rec := h.do(http.MethodPost, "/api/v1/users/"+userID.String()+"/subscriptions", member, map[string]any{
		"package_id": packageID,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/users/"+userID.String()+"/subscriptions", admin, map[string]any{
		"package_id": packageID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decode[billingApp.SubscriptionDTO](t, rec)
	assert.True(t, sub.Active)

	rec = h.do(http.MethodGet, "/api/v1/me/roles", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["roles"], "Coach")

	rec = h.do(http.MethodPost, "/api/v1/users/"+userID.String()+"/subscriptions/"+sub.ID.String()+"/renew", admin, map[string]any{
		"additional_days": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	renewed := decode[billingApp.SubscriptionDTO](t, rec)
	assert.True(t, renewed.EndDate.After(sub.EndDate))

	rec = h.do(http.MethodGet, "/api/v1/me/subscriptions", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]billingApp.SubscriptionDTO](t, rec), 1)

	rec = h.do(http.MethodPost, "/api/v1/me/subscriptions/"+sub.ID.String()+"/cancel", member, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/users/"+userID.String()+"/roles", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec)["roles"])

	rec = h.do(http.MethodPost, "/api/v1/me/subscriptions/"+uuid.NewString()+"/cancel", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AuthFlow(t *testing.T) {
	h := newHarness(t)
	apptest.SeedUser(t, h.container, "member@example.com")

	rec := h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "member@example.com",
		"password": apptest.Password,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[map[string]any](t, rec)
	require.NotEmpty(t, login["access_token"])

	rec = h.do(http.MethodGet, "/api/v1/me/roles", login["access_token"].(string), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "member@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"first_name": "Ana",
		"last_name":  "Silva",
		"email":      "member@example.com",
		"password":   "long-enough-password",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"first_name": "Ana",
		"last_name":  "Silva",
		"email":      "new@example.com",
		"password":   "long-enough-password",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/verify", "", map[string]any{"token": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/password/forgot", "", map[string]any{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/auth/password/reset", "", map[string]any{
		"token":        "bogus",
		"new_password": "long-enough-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
