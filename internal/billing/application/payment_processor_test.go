package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

func TestProcessPayment_ActivatesRedeliversAndExpires(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()

	outcome, err := h.pay(t, "T1", userID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)

	subs := h.st.forUser(userID)
	require.Len(t, subs, 1)
	assert.Equal(t, t0.AddDate(0, 0, 30), subs[0].EndDate())
	assert.Equal(t, []string{"Coach"}, h.identity.rolesOf(userID))

	outcome, err = h.pay(t, "T1", userID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)

	subs = h.st.forUser(userID)
	require.Len(t, subs, 1)
	assert.Equal(t, t0.AddDate(0, 0, 30), subs[0].EndDate())
	assert.Len(t, h.st.ledger, 1)

	h.clock = t0.AddDate(0, 0, 31)
	roles, err := h.entitlements.ReconcileAndGetRoles(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Equal(t, domain.StatusExpired, h.st.get(subs[0].ID()).Status())

	assert.Equal(t, []string{
		domain.RoutingKeySubscriptionActivated,
		domain.RoutingKeySubscriptionExpired,
	}, h.routingKeys(t))
}

func TestProcessPayment_ExtendsFromExistingEndDate(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()

	_, err := h.pay(t, "T1", userID, coach.ID)
	require.NoError(t, err)

	h.clock = t0.AddDate(0, 0, 10)
	outcome, err := h.pay(t, "T2", userID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)

	subs := h.st.forUser(userID)
	require.Len(t, subs, 1)
	assert.Equal(t, t0.AddDate(0, 0, 60), subs[0].EndDate())
	assert.Equal(t, t0, subs[0].StartDate())

	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricSubscriptionsActivated))
	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricSubscriptionsExtended))
	assert.Equal(t, domain.LedgerOutcomeExtended, h.st.ledger["T2"].Outcome)
}

func TestProcessPayment_ReplacesLapsedActiveRow(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()

	stale := h.st.put(domain.NewSubscription(userID, coach, t0.AddDate(0, 0, -40)))

	outcome, err := h.pay(t, "T1", userID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)

	assert.Equal(t, domain.StatusExpired, h.st.get(stale.ID()).Status())
	subs := h.st.forUser(userID)
	require.Len(t, subs, 2)
	assert.Equal(t, t0, subs[0].StartDate())
	assert.Equal(t, t0.AddDate(0, 0, 30), subs[0].EndDate())
	assert.Equal(t, []string{"Coach"}, h.identity.rolesOf(userID))
}

func TestProcessPayment_UnknownPackageIsRetriedWithoutClaim(t *testing.T) {
	h := newHarness(t)
	userID := h.identity.addUser()

	outcome, err := h.pay(t, "T1", userID, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
	assert.Equal(t, OutcomeRetry, outcome)

	assert.Empty(t, h.st.ledger)
	assert.Empty(t, h.st.forUser(userID))
	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricPaymentsProcessed, observability.T("outcome", "retry")))
}

func TestProcessPayment_UnknownUserLeavesNoSubscription(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	stranger := uuid.New()

	for range 3 {
		outcome, err := h.pay(t, "T1", stranger, coach.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.Equal(t, OutcomeRetry, outcome)
	}

	assert.Empty(t, h.st.ledger)
	assert.Empty(t, h.st.forUser(stranger))
	assert.Empty(t, h.routingKeys(t))
	assert.Zero(t, h.identity.adds)
}

func TestProcessPayment_DeletedUserLeavesNoSubscription(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()
	h.identity.users[userID].Deleted = true

	outcome, err := h.pay(t, "T1", userID, coach.ID)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.Empty(t, h.st.forUser(userID))
}

func TestProcessPayment_InvalidEventsAreDeadLettered(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)

	tests := []struct {
		name string
		evt  domain.PaymentConfirmed
	}{
		{
			name: "missing transaction id",
			evt:  domain.PaymentConfirmed{UserID: uuid.New(), PackageID: &coach.ID},
		},
		{
			name: "missing user",
			evt:  domain.PaymentConfirmed{TransactionID: "T1", PackageID: &coach.ID},
		},
		{
			name: "missing package",
			evt:  domain.PaymentConfirmed{TransactionID: "T1", UserID: uuid.New()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.processor.ProcessPayment(context.Background(), tt.evt)
			require.Error(t, err)
			assert.ErrorIs(t, err, sharedDomain.ErrInvalid)
			assert.Equal(t, OutcomeDeadLetter, outcome)
		})
	}
	assert.Empty(t, h.st.ledger)
}

func TestProcessPayment_RoleFailureRetriesWithoutDoubleExtension(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()
	h.identity.failAdd = errors.New("connection reset")

	outcome, err := h.pay(t, "T1", userID, coach.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, sharedDomain.ErrTransient)
	assert.Equal(t, OutcomeRetry, outcome)

	// The subscription committed even though roles did not.
	subs := h.st.forUser(userID)
	require.Len(t, subs, 1)
	assert.Empty(t, h.identity.rolesOf(userID))

	h.identity.failAdd = nil
	outcome, err = h.pay(t, "T1", userID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)

	subs = h.st.forUser(userID)
	require.Len(t, subs, 1)
	assert.Equal(t, t0.AddDate(0, 0, 30), subs[0].EndDate())
	assert.Equal(t, []string{"Coach"}, h.identity.rolesOf(userID))
}

func TestProcessPayment_InactivePackageIsHonored(t *testing.T) {
	retired := coachPackage()
	retired.Active = false
	h := newHarness(t, retired)
	userID := h.identity.addUser()

	outcome, err := h.pay(t, "T1", userID, retired.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAck, outcome)
	assert.Len(t, h.st.forUser(userID), 1)
}

func TestProcessPayment_StoreFailureIsRetryable(t *testing.T) {
	coach := coachPackage()
	h := newHarness(t, coach)
	userID := h.identity.addUser()
	h.st.saveErr = sharedDomain.NewError(sharedDomain.ErrTransient, "database is locked")

	outcome, err := h.pay(t, "T1", userID, coach.ID)
	require.Error(t, err)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.Empty(t, h.st.ledger)
	assert.GreaterOrEqual(t, h.st.rollback, 3)
}
