package persistence

import (
	"context"
	"errors"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWorkflowStepRepository implements fundrequest.WorkflowStepRepository using GORM
type GormWorkflowStepRepository struct {
	db *gorm.DB
}

// NewGormWorkflowStepRepository creates a new GormWorkflowStepRepository
func NewGormWorkflowStepRepository(db *gorm.DB) *GormWorkflowStepRepository {
	return &GormWorkflowStepRepository{db: db}
}

// FindByTenant returns all steps of the tenant, active or not, by step order
func (r *GormWorkflowStepRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]fundrequest.WorkflowStep, error) {
	var rows []models.WorkflowStepModel
	err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Order("step_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	steps := make([]fundrequest.WorkflowStep, len(rows))
	for i := range rows {
		steps[i] = *rows[i].ToDomain()
	}
	return steps, nil
}

// FindByID finds a step of the tenant by its ID
func (r *GormWorkflowStepRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*fundrequest.WorkflowStep, error) {
	var model models.WorkflowStepModel
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

// InsertIfAbsent inserts the steps whose (tenant, step order) slot is free.
// Concurrent seeders therefore never produce duplicates.
func (r *GormWorkflowStepRepository) InsertIfAbsent(ctx context.Context, steps []fundrequest.WorkflowStep) (int, error) {
	if len(steps) == 0 {
		return 0, nil
	}
	rows := make([]*models.WorkflowStepModel, len(steps))
	for i := range steps {
		rows[i] = models.WorkflowStepModelFromDomain(&steps[i])
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "step_order"}},
			DoNothing: true,
		}).
		Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// Update saves a modified step. Moving a step onto an occupied order is rejected.
func (r *GormWorkflowStepRepository) Update(ctx context.Context, step *fundrequest.WorkflowStep) error {
	result := r.db.WithContext(ctx).
		Model(&models.WorkflowStepModel{}).
		Scopes(tenantRowScope(step.TenantID, step.ID)).
		Updates(map[string]any{
			"step_name":        step.StepName,
			"step_order":       step.StepOrder,
			"responsible_role": step.ResponsibleRole,
			"is_active":        step.IsActive,
			"updated_at":       step.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return shared.NewValidationError("Another step already uses this step order")
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormWorkflowStepRepository implements WorkflowStepRepository
var _ fundrequest.WorkflowStepRepository = (*GormWorkflowStepRepository)(nil)
