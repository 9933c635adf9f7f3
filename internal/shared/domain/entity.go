package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity is anything with a stable identity and audit timestamps.
type Entity interface {
	ID() uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

// BaseEntity is embedded by entities. Timestamps are kept in UTC.
type BaseEntity struct {
	ident   uuid.UUID
	created time.Time
	updated time.Time
}

// NewBaseEntity assigns a fresh id, created and updated at now.
func NewBaseEntity(now time.Time) BaseEntity {
	return RehydrateBaseEntity(uuid.New(), now, now)
}

// RehydrateBaseEntity restores an entity loaded from storage.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{ident: id, created: createdAt.UTC(), updated: updatedAt.UTC()}
}

func (e BaseEntity) ID() uuid.UUID        { return e.ident }
func (e BaseEntity) CreatedAt() time.Time { return e.created }
func (e BaseEntity) UpdatedAt() time.Time { return e.updated }

// Touch records a modification at now.
func (e *BaseEntity) Touch(now time.Time) { e.updated = now.UTC() }
