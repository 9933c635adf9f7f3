package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// RoleChanges is the minimal role diff reconciliation applies.
type RoleChanges struct {
	Added   []string
	Removed []string
}

// IsEmpty reports whether nothing needs to change.
func (c RoleChanges) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// RoleMap maps every known package to its role. It is rebuilt for each
// reconciliation.
type RoleMap map[uuid.UUID]string

// NewRoleMap indexes packages by id.
func NewRoleMap(packages []Package) RoleMap {
	m := make(RoleMap, len(packages))
	for _, p := range packages {
		m[p.ID] = p.Role
	}
	return m
}

// Managed reports whether role is granted by some package.
func (m RoleMap) Managed(role string) bool {
	for _, r := range m {
		if r == role {
			return true
		}
	}
	return false
}

// RequiredRoles returns the roles backed by subscriptions active at now,
// grouped by role so two packages sharing a role keep it alive together.
// Subscriptions whose package is unknown are returned separately.
func (m RoleMap) RequiredRoles(subs []*Subscription, now time.Time) (map[string]struct{}, []uuid.UUID) {
	required := make(map[string]struct{})
	var unknown []uuid.UUID
	for _, s := range subs {
		if !s.IsActiveAt(now) {
			continue
		}
		role, ok := m[s.PackageID()]
		if !ok {
			unknown = append(unknown, s.PackageID())
			continue
		}
		required[role] = struct{}{}
	}
	return required, unknown
}

// PlanRoleChanges diffs current roles against required ones. Only managed
// roles are ever removed.
func (m RoleMap) PlanRoleChanges(current []string, required map[string]struct{}) RoleChanges {
	have := make(map[string]struct{}, len(current))
	var changes RoleChanges
	for _, role := range current {
		have[role] = struct{}{}
		if _, ok := required[role]; ok {
			continue
		}
		if m.Managed(role) && !slices.Contains(changes.Removed, role) {
			changes.Removed = append(changes.Removed, role)
		}
	}
	for role := range required {
		if _, ok := have[role]; !ok {
			changes.Added = append(changes.Added, role)
		}
	}
	slices.Sort(changes.Added)
	slices.Sort(changes.Removed)
	return changes
}
