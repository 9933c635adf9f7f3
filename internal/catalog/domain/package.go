package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrPackageNotFound      = sharedDomain.NewError(sharedDomain.ErrNotFound, "package not found")
	ErrPackageInUse         = sharedDomain.NewError(sharedDomain.ErrConflict, "cannot delete package with active subscriptions")
	ErrPackageRoleInUse     = sharedDomain.NewError(sharedDomain.ErrConflict, "cannot change the role of a package with active subscriptions")
	ErrEmptyPackageName     = sharedDomain.NewError(sharedDomain.ErrInvalid, "package name cannot be empty")
	ErrInvalidPrice         = sharedDomain.NewError(sharedDomain.ErrInvalid, "package price must be greater than zero")
	ErrInvalidDuration      = sharedDomain.NewError(sharedDomain.ErrInvalid, "package duration must be at least one day")
	ErrEmptyAssociatedRole  = sharedDomain.NewError(sharedDomain.ErrInvalid, "package must grant a role")
	ErrInvalidPackageStatus = sharedDomain.NewError(sharedDomain.ErrInvalid, "package status must be active or inactive")
)

// Status is the sale state of a package.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus converts a stored or user supplied status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", ErrInvalidPackageStatus
	}
}

// PackageSpec holds the editable attributes of a package.
type PackageSpec struct {
	Name           string
	Description    string
	Price          decimal.Decimal
	DurationDays   int
	AssociatedRole string
	Status         Status
}

func (s PackageSpec) normalize() (PackageSpec, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Description = strings.TrimSpace(s.Description)
	s.AssociatedRole = strings.TrimSpace(s.AssociatedRole)
	if s.Status == "" {
		s.Status = StatusActive
	}

	switch {
	case s.Name == "":
		return s, ErrEmptyPackageName
	case !s.Price.IsPositive():
		return s, ErrInvalidPrice
	case s.DurationDays <= 0:
		return s, ErrInvalidDuration
	case s.AssociatedRole == "":
		return s, ErrEmptyAssociatedRole
	}
	if _, err := ParseStatus(string(s.Status)); err != nil {
		return s, err
	}
	return s, nil
}

// Package is a purchasable, time-boxed grant of exactly one role.
type Package struct {
	sharedDomain.BaseEntity
	spec PackageSpec
}

// NewPackage validates spec and creates a package.
func NewPackage(spec PackageSpec, now time.Time) (*Package, error) {
	spec, err := spec.normalize()
	if err != nil {
		return nil, err
	}
	return &Package{
		BaseEntity: sharedDomain.NewBaseEntity(now),
		spec:       spec,
	}, nil
}

// RehydratePackage recreates a package from persisted state.
func RehydratePackage(id uuid.UUID, spec PackageSpec, createdAt, updatedAt time.Time) *Package {
	return &Package{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		spec:       spec,
	}
}

func (p *Package) Name() string           { return p.spec.Name }
func (p *Package) Description() string    { return p.spec.Description }
func (p *Package) Price() decimal.Decimal { return p.spec.Price }
func (p *Package) DurationDays() int      { return p.spec.DurationDays }
func (p *Package) AssociatedRole() string { return p.spec.AssociatedRole }
func (p *Package) Status() Status         { return p.spec.Status }
func (p *Package) IsActive() bool         { return p.spec.Status == StatusActive }
func (p *Package) Spec() PackageSpec      { return p.spec }

// Duration is the subscription length granted per purchase.
func (p *Package) Duration() time.Duration {
	return time.Duration(p.spec.DurationDays) * 24 * time.Hour
}

// Update replaces the editable attributes under the same invariants as
// creation.
func (p *Package) Update(spec PackageSpec, now time.Time) error {
	spec, err := spec.normalize()
	if err != nil {
		return err
	}
	p.spec = spec
	p.Touch(now)
	return nil
}
