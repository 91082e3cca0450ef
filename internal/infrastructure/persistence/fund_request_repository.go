package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFundRequestRepository implements fundrequest.FundRequestRepository using GORM.
// Request rows, history entries and outbox events are written in one transaction.
type GormFundRequestRepository struct {
	db          *gorm.DB
	history     *GormHistoryRepository
	outboxSaver shared.OutboxEventSaver // optional
}

// NewGormFundRequestRepository creates a new GormFundRequestRepository
func NewGormFundRequestRepository(db *gorm.DB) *GormFundRequestRepository {
	return &GormFundRequestRepository{
		db:      db,
		history: NewGormHistoryRepository(db),
	}
}

// SetOutboxSaver enables the transactional outbox for domain events
func (r *GormFundRequestRepository) SetOutboxSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByID finds a fund request of the tenant by its ID
func (r *GormFundRequestRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*fundrequest.FundRequest, error) {
	var model models.FundRequestModel
	err := r.db.WithContext(ctx).
		Scopes(tenantRowScope(tenantID, id)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists the tenant's fund requests, newest request number first
func (r *GormFundRequestRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter fundrequest.ListFilter) ([]fundrequest.FundRequest, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.FundRequestModel{}).Scopes(tenantScope(tenantID))
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.From != nil {
		query = query.Where("request_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("request_date <= ?", *filter.To)
	}
	if filter.Search != "" {
		like := containsPattern(filter.Search)
		query = query.Where(`(LOWER(beneficiary) LIKE LOWER(?) ESCAPE '\' OR LOWER(description) LIKE LOWER(?) ESCAPE '\')`, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, FundRequestSortFields, "request_number")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var rows []models.FundRequestModel
	err := query.
		Order(sortField + " " + sortOrder).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	requests := make([]fundrequest.FundRequest, len(rows))
	for i := range rows {
		requests[i] = *rows[i].ToDomain()
	}
	return requests, total, nil
}

// Create inserts a new request, its creation history entry and its pending events
func (r *GormFundRequestRepository) Create(ctx context.Context, req *fundrequest.FundRequest, entry *fundrequest.HistoryEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.FundRequestModelFromDomain(req)).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("request number %d: %w", req.RequestNumber, shared.ErrAlreadyExists)
			}
			return err
		}
		if entry != nil {
			if err := r.history.appendTx(tx, entry); err != nil {
				return err
			}
		}
		return r.saveEvents(ctx, tx, req)
	})
	if err != nil {
		return err
	}
	req.ClearDomainEvents()
	return nil
}

// UpdateIfStatus writes the mutable columns of req only if the stored row still
// has expectedStatus and expectedVersion. Zero affected rows means another writer
// got there first.
func (r *GormFundRequestRepository) UpdateIfStatus(
	ctx context.Context,
	req *fundrequest.FundRequest,
	expectedStatus fundrequest.Status,
	expectedVersion int,
	entry *fundrequest.HistoryEntry,
) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FundRequestModel{}).
			Where("id = ? AND tenant_id = ? AND status = ? AND version = ?",
				req.ID, req.TenantID, expectedStatus, expectedVersion).
			Updates(mutableColumns(req))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		if entry != nil {
			if err := r.history.appendTx(tx, entry); err != nil {
				return err
			}
		}
		return r.saveEvents(ctx, tx, req)
	})
	if err != nil {
		return err
	}
	req.ClearDomainEvents()
	return nil
}

func (r *GormFundRequestRepository) saveEvents(ctx context.Context, tx *gorm.DB, agg shared.AggregateRoot) error {
	events := agg.GetDomainEvents()
	if r.outboxSaver == nil || len(events) == 0 {
		return nil
	}
	if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

// mutableColumns lists every column a transition may change. A map is used so
// that cleared values (nil timestamps, empty reason) are written too.
func mutableColumns(req *fundrequest.FundRequest) map[string]any {
	return map[string]any{
		"status":               req.Status,
		"rejected_from_status": req.RejectedFromStatus,
		"rejection_reason":     req.RejectionReason,
		"payment_reference":    req.PaymentReference,
		"payment_proof_key":    req.PaymentProofKey,
		"submitted_at":         req.SubmittedAt,
		"reviewed_at":          req.ReviewedAt,
		"validated_at":         req.ValidatedAt,
		"paid_at":              req.PaidAt,
		"rejected_at":          req.RejectedAt,
		"version":              req.Version,
		"updated_at":           req.UpdatedAt,
	}
}

// Ensure GormFundRequestRepository implements FundRequestRepository
var _ fundrequest.FundRequestRepository = (*GormFundRequestRepository)(nil)
