package domain

import "time"

// AggregateRoot is a consistency boundary. It buffers the events raised by
// its mutations until the application layer writes them to the outbox.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot is embedded by aggregates. version is the value last
// read from or written to storage; zero means never persisted.
type BaseAggregateRoot struct {
	BaseEntity
	pending []DomainEvent
	version int
}

func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now)}
}

// RehydrateBaseAggregateRoot restores an aggregate at the stored version.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) { a.pending = append(a.pending, event) }
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent      { return a.pending }
func (a *BaseAggregateRoot) ClearDomainEvents()               { a.pending = nil }

func (a *BaseAggregateRoot) Version() int { return a.version }
func (a *BaseAggregateRoot) IsNew() bool  { return a.version == 0 }

// SetVersion is for repositories, after an insert or a successful
// compare-and-swap update.
func (a *BaseAggregateRoot) SetVersion(version int) { a.version = version }
