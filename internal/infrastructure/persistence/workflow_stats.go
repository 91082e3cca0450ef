package persistence

import (
	"context"

	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/erp/fundflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormWorkflowStats feeds the periodic workflow gauges from the fund_requests table
type GormWorkflowStats struct {
	db *gorm.DB
}

// NewGormWorkflowStats creates a new GormWorkflowStats
func NewGormWorkflowStats(db *gorm.DB) *GormWorkflowStats {
	return &GormWorkflowStats{db: db}
}

// GetActiveTenantIDs returns every tenant that owns at least one fund request
func (s *GormWorkflowStats) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.FundRequestModel{}).
		Distinct("tenant_id").
		Pluck("tenant_id", &ids).Error
	return ids, err
}

// CountByStatus returns the tenant's number of fund requests per status
func (s *GormWorkflowStats) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.FundRequestModel{}).
		Scopes(tenantScope(tenantID)).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var (
	_ telemetry.TenantProvider      = (*GormWorkflowStats)(nil)
	_ telemetry.StatusCountProvider = (*GormWorkflowStats)(nil)
)
