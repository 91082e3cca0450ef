package fundrequest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a fund request listing
type ListFilter struct {
	Status      *Status
	RequesterID *uuid.UUID
	From        *time.Time
	To          *time.Time
	Search      string
	// OrderBy is a column name; the repository ignores columns it does not allow
	OrderBy  string
	OrderDir string
	Page     int
	PageSize int
}

// Normalize fills paging defaults
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// FundRequestRepository persists fund requests
type FundRequestRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*FundRequest, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]FundRequest, int64, error)
	// Create inserts a new request together with its creation history entry
	// and pending domain events.
	Create(ctx context.Context, req *FundRequest, entry *HistoryEntry) error
	// UpdateIfStatus writes req only if the stored row still has expectedStatus and
	// expectedVersion; otherwise it returns shared.ErrConcurrencyConflict and
	// nothing is written. A non-nil entry is appended in the same transaction.
	UpdateIfStatus(ctx context.Context, req *FundRequest, expectedStatus Status, expectedVersion int, entry *HistoryEntry) error
}

// HistoryRepository is the append-only history ledger
type HistoryRepository interface {
	// Append records one entry and assigns its Sequence
	Append(ctx context.Context, entry *HistoryEntry) error
	// FindByRequest returns entries in insertion order
	FindByRequest(ctx context.Context, tenantID, requestID uuid.UUID) ([]HistoryEntry, error)
	CountByRequest(ctx context.Context, tenantID, requestID uuid.UUID) (int64, error)
}

// WorkflowStepRepository persists per-organization workflow steps
type WorkflowStepRepository interface {
	// FindByTenant returns all steps of the tenant ordered by step_order
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]WorkflowStep, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*WorkflowStep, error)
	// InsertIfAbsent inserts steps whose (tenant, step_order) does not exist yet and
	// returns how many rows were inserted
	InsertIfAbsent(ctx context.Context, steps []WorkflowStep) (int, error)
	Update(ctx context.Context, step *WorkflowStep) error
}

// RequestNumberGenerator issues per-organization request numbers.
// Numbers are unique and increasing within an organization; gaps are tolerated.
type RequestNumberGenerator interface {
	Next(ctx context.Context, tenantID uuid.UUID) (int64, error)
}
