package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// staleProcessingAfter is how long a claimed entry may stay in PROCESSING
// before another processor may claim it again.
const staleProcessingAfter = 5 * time.Minute

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ClaimBatch locks due entries with FOR UPDATE SKIP LOCKED, moves them to
// PROCESSING and returns them. Concurrent processors never claim the same entry.
func (r *GormOutboxRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND next_retry_at <= ?) OR (status = ? AND updated_at <= ?)",
				shared.OutboxStatusPending,
				shared.OutboxStatusFailed, now,
				shared.OutboxStatusProcessing, now.Add(-staleProcessingAfter)).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		return tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
		entries[i].Status = shared.OutboxStatusProcessing
		entries[i].UpdatedAt = now
	}
	return entries, nil
}

// Update writes the delivery state of an entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":        entry.Status,
			"retry_count":   entry.RetryCount,
			"last_error":    entry.LastError,
			"next_retry_at": entry.NextRetryAt,
			"processed_at":  entry.ProcessedAt,
			"updated_at":    entry.UpdatedAt,
		}).Error
}

// FindDead returns dead-lettered entries, most recently failed first
func (r *GormOutboxRepository) FindDead(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusDead).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// FindByID retrieves a single outbox entry
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

// DeleteSentBefore removes delivered entries processed before the cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of entries per delivery status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[shared.OutboxStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
