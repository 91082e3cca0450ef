package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is what repositories need from an aggregate to persist its events
type AggregateRoot interface {
	GetID() uuid.UUID
	GetVersion() int
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// TenantAggregateRoot carries identity, tenant scope, optimistic lock
// version and pending domain events for an aggregate.
type TenantAggregateRoot struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	domainEvents []DomainEvent
}

// NewTenantAggregateRoot creates a new tenant-scoped aggregate root
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	now := time.Now()
	return TenantAggregateRoot{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetID returns the aggregate ID
func (a *TenantAggregateRoot) GetID() uuid.UUID {
	return a.ID
}

// GetVersion returns the aggregate version for optimistic locking
func (a *TenantAggregateRoot) GetVersion() int {
	return a.Version
}

// Touch bumps the version and update timestamp after a state change
func (a *TenantAggregateRoot) Touch() {
	a.Version++
	a.UpdatedAt = time.Now()
}

// AddDomainEvent adds a domain event to be published
func (a *TenantAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *TenantAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *TenantAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}
