package models

import (
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/google/uuid"
)

// WorkflowStepModel is the persistence model for a per-tenant workflow step
type WorkflowStepModel struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_steps_tenant_order,priority:1"`
	StepName        string           `gorm:"type:varchar(100);not null"`
	StepOrder       int              `gorm:"not null;uniqueIndex:idx_workflow_steps_tenant_order,priority:2"`
	ResponsibleRole fundrequest.Role `gorm:"type:varchar(30);not null"`
	IsActive        bool             `gorm:"not null"`
	CreatedAt       time.Time        `gorm:"not null"`
	UpdatedAt       time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkflowStepModel) TableName() string {
	return "workflow_steps"
}

// ToDomain converts the persistence model to a domain WorkflowStep
func (m *WorkflowStepModel) ToDomain() *fundrequest.WorkflowStep {
	return &fundrequest.WorkflowStep{
		ID:              m.ID,
		TenantID:        m.TenantID,
		StepName:        m.StepName,
		StepOrder:       m.StepOrder,
		ResponsibleRole: m.ResponsibleRole,
		IsActive:        m.IsActive,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// WorkflowStepModelFromDomain creates a new persistence model from a domain WorkflowStep
func WorkflowStepModelFromDomain(s *fundrequest.WorkflowStep) *WorkflowStepModel {
	return &WorkflowStepModel{
		ID:              s.ID,
		TenantID:        s.TenantID,
		StepName:        s.StepName,
		StepOrder:       s.StepOrder,
		ResponsibleRole: s.ResponsibleRole,
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
