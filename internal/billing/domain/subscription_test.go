package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func coachPackage() Package {
	return Package{ID: uuid.New(), Name: "Coach", Role: "Coach", DurationDays: 30, Active: true}
}

func TestNewSubscription(t *testing.T) {
	pkg := coachPackage()
	userID := uuid.New()

	s := NewSubscription(userID, pkg, t0)

	assert.Equal(t, userID, s.UserID())
	assert.Equal(t, pkg.ID, s.PackageID())
	assert.Equal(t, t0, s.StartDate())
	assert.Equal(t, t0.AddDate(0, 0, 30), s.EndDate())
	assert.Equal(t, StatusActive, s.Status())
	assert.True(t, s.IsNew())

	require.Len(t, s.DomainEvents(), 1)
	evt, ok := s.DomainEvents()[0].(*SubscriptionActivated)
	require.True(t, ok)
	assert.Equal(t, RoutingKeySubscriptionActivated, evt.RoutingKey())
	assert.Equal(t, "Coach", evt.Role)
	assert.Equal(t, s.EndDate(), evt.EndDate)
}

func TestSubscription_ExtendIsAdditiveFromEndDate(t *testing.T) {
	pkg := coachPackage()
	s := NewSubscription(uuid.New(), pkg, t0)
	s.ClearDomainEvents()

	renewedAt := t0.AddDate(0, 0, 10)
	require.NoError(t, s.Extend(pkg.Duration(), renewedAt))

	assert.Equal(t, t0.AddDate(0, 0, 60), s.EndDate())
	assert.Equal(t, renewedAt, s.UpdatedAt())
	require.Len(t, s.DomainEvents(), 1)
	evt := s.DomainEvents()[0].(*SubscriptionExtended)
	assert.Equal(t, t0.AddDate(0, 0, 30), evt.PreviousEndDate)
	assert.Equal(t, t0.AddDate(0, 0, 60), evt.EndDate)
}

func TestSubscription_ExtendRejects(t *testing.T) {
	s := NewSubscription(uuid.New(), coachPackage(), t0)

	assert.ErrorIs(t, s.Extend(0, t0), ErrInvalidExtension)
	assert.ErrorIs(t, s.Extend(-time.Hour, t0), sharedDomain.ErrInvalid)

	require.NoError(t, s.Cancel(t0))
	err := s.Extend(time.Hour, t0)
	assert.ErrorIs(t, err, ErrSubscriptionNotActive)
	assert.ErrorIs(t, err, sharedDomain.ErrConflict)
}

func TestSubscription_Expire(t *testing.T) {
	s := NewSubscription(uuid.New(), coachPackage(), t0)
	s.ClearDomainEvents()
	end := s.EndDate()

	assert.False(t, s.Expire(end), "end date itself is still covered")
	assert.True(t, s.IsActiveAt(end))
	assert.False(t, s.IsLapsed(end))

	later := end.Add(time.Second)
	assert.True(t, s.IsLapsed(later))
	assert.False(t, s.IsActiveAt(later))
	assert.True(t, s.Expire(later))
	assert.Equal(t, StatusExpired, s.Status())
	require.Len(t, s.DomainEvents(), 1)
	assert.Equal(t, RoutingKeySubscriptionExpired, s.DomainEvents()[0].RoutingKey())

	assert.False(t, s.Expire(later.Add(time.Hour)), "expired is terminal")
	assert.ErrorIs(t, s.Cancel(later), ErrSubscriptionNotActive)
}

func TestSubscription_Cancel(t *testing.T) {
	s := NewSubscription(uuid.New(), coachPackage(), t0)
	s.ClearDomainEvents()

	require.NoError(t, s.Cancel(t0.Add(time.Hour)))
	assert.Equal(t, StatusCancelled, s.Status())
	assert.False(t, s.IsActiveAt(t0.Add(time.Hour)))
	assert.False(t, s.IsLapsed(t0.AddDate(1, 0, 0)))
	require.Len(t, s.DomainEvents(), 1)
	assert.IsType(t, &SubscriptionCancelled{}, s.DomainEvents()[0])

	assert.ErrorIs(t, s.Cancel(t0.Add(2*time.Hour)), ErrSubscriptionNotActive)
}

func TestRehydrateSubscription(t *testing.T) {
	id, userID, packageID := uuid.New(), uuid.New(), uuid.New()
	s := RehydrateSubscription(id, userID, packageID, t0, t0.AddDate(0, 1, 0), StatusExpired, 4, t0, t0.Add(time.Hour))

	assert.Equal(t, id, s.ID())
	assert.Equal(t, 4, s.Version())
	assert.False(t, s.IsNew())
	assert.Equal(t, StatusExpired, s.Status())
	assert.Empty(t, s.DomainEvents())
}

func TestParseStatus(t *testing.T) {
	for _, in := range []string{"active", "Expired", " cancelled "} {
		_, err := ParseStatus(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseStatus("trialing")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
