package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

func validSpec() PackageSpec {
	return PackageSpec{
		Name:           "  Coaching Monthly ",
		Description:    "One month of coaching",
		Price:          decimal.RequireFromString("29.90"),
		DurationDays:   30,
		AssociatedRole: "Coach",
	}
}

func TestNewPackage(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("normalizes and defaults to active", func(t *testing.T) {
		pkg, err := NewPackage(validSpec(), now)

		require.NoError(t, err)
		assert.Equal(t, "Coaching Monthly", pkg.Name())
		assert.Equal(t, StatusActive, pkg.Status())
		assert.True(t, pkg.IsActive())
		assert.Equal(t, 30*24*time.Hour, pkg.Duration())
		assert.Equal(t, now, pkg.CreatedAt())
	})

	tests := []struct {
		name   string
		mutate func(*PackageSpec)
		err    error
	}{
		{"empty name", func(s *PackageSpec) { s.Name = " " }, ErrEmptyPackageName},
		{"zero price", func(s *PackageSpec) { s.Price = decimal.Zero }, ErrInvalidPrice},
		{"negative price", func(s *PackageSpec) { s.Price = decimal.NewFromInt(-5) }, ErrInvalidPrice},
		{"zero duration", func(s *PackageSpec) { s.DurationDays = 0 }, ErrInvalidDuration},
		{"missing role", func(s *PackageSpec) { s.AssociatedRole = "" }, ErrEmptyAssociatedRole},
		{"unknown status", func(s *PackageSpec) { s.Status = "paused" }, ErrInvalidPackageStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)

			_, err := NewPackage(spec, now)

			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, sharedDomain.ErrInvalid)
		})
	}
}

func TestPackage_Update(t *testing.T) {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	pkg, err := NewPackage(validSpec(), created)
	require.NoError(t, err)

	t.Run("rejects invalid spec and keeps state", func(t *testing.T) {
		spec := validSpec()
		spec.AssociatedRole = ""

		err := pkg.Update(spec, created.Add(time.Hour))

		assert.ErrorIs(t, err, ErrEmptyAssociatedRole)
		assert.Equal(t, "Coach", pkg.AssociatedRole())
		assert.Equal(t, created, pkg.UpdatedAt())
	})

	t.Run("applies valid spec", func(t *testing.T) {
		spec := validSpec()
		spec.Status = StatusInactive
		spec.DurationDays = 90

		require.NoError(t, pkg.Update(spec, created.Add(time.Hour)))

		assert.False(t, pkg.IsActive())
		assert.Equal(t, 90, pkg.DurationDays())
		assert.Equal(t, created.Add(time.Hour), pkg.UpdatedAt())
	})
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Inactive ")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, s)

	_, err = ParseStatus("deleted")
	assert.ErrorIs(t, err, ErrInvalidPackageStatus)
}
