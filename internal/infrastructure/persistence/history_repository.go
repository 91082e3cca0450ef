package persistence

import (
	"context"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHistoryRepository is the append-only history ledger. Entries are never
// updated or deleted; the database enforces this with a trigger as well.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new GormHistoryRepository
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

// Append records one entry and assigns its per-request sequence
func (r *GormHistoryRepository) Append(ctx context.Context, entry *fundrequest.HistoryEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.appendTx(tx, entry)
	})
}

// appendTx appends within an existing transaction. Two writers racing for the
// same sequence collide on the unique index and the loser gets a conflict.
func (r *GormHistoryRepository) appendTx(tx *gorm.DB, entry *fundrequest.HistoryEntry) error {
	var last int64
	err := tx.Model(&models.HistoryEntryModel{}).
		Where("fund_request_id = ?", entry.FundRequestID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}

	entry.Sequence = last + 1
	if err := tx.Create(models.HistoryEntryModelFromDomain(entry)).Error; err != nil {
		entry.Sequence = 0
		if isUniqueViolation(err) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// FindByRequest returns a request's entries in insertion order
func (r *GormHistoryRepository) FindByRequest(ctx context.Context, tenantID, requestID uuid.UUID) ([]fundrequest.HistoryEntry, error) {
	var rows []models.HistoryEntryModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND fund_request_id = ?", tenantID, requestID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]fundrequest.HistoryEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// CountByRequest returns how many entries a request has
func (r *GormHistoryRepository) CountByRequest(ctx context.Context, tenantID, requestID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.HistoryEntryModel{}).
		Where("tenant_id = ? AND fund_request_id = ?", tenantID, requestID).
		Count(&count).Error
	return count, err
}

// Ensure GormHistoryRepository implements HistoryRepository
var _ fundrequest.HistoryRepository = (*GormHistoryRepository)(nil)
