package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultOutboxMaxRetries = 5
	DefaultOutboxBackoff    = time.Second
)

// OutboxEntry is a serialized domain event waiting for delivery to the notification sink
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry creates a pending outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkProcessing claims the entry for delivery
func (e *OutboxEntry) MarkProcessing() error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return errors.New("only pending or failed entries can be claimed")
	}
	e.Status = OutboxStatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// MarkSent records a successful delivery
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The entry is scheduled again with
// exponential backoff until MaxRetries is reached, then dead-lettered.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := time.Now().Add(DefaultOutboxBackoff * time.Duration(1<<uint(e.RetryCount-1)))
	e.NextRetryAt = &next
}

// ResetForRetry moves a dead entry back to pending
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return errors.New("only dead entries can be reset")
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// OutboxRepository persists outbox entries
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// ClaimBatch atomically moves due pending/failed entries to PROCESSING and returns them
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	FindDead(ctx context.Context, limit int) ([]*OutboxEntry, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
