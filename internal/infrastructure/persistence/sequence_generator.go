package persistence

import (
	"context"
	"fmt"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// nextRequestNumberSQL bumps the tenant's counter atomically. The row lock taken
// by the upsert serializes concurrent callers of the same tenant.
const nextRequestNumberSQL = `INSERT INTO fund_request_sequences (tenant_id, last_value) VALUES (?, 1)
ON CONFLICT (tenant_id) DO UPDATE SET last_value = fund_request_sequences.last_value + 1
RETURNING last_value`

// GormRequestNumberGenerator issues per-tenant request numbers from a counter table
type GormRequestNumberGenerator struct {
	db *gorm.DB
}

// NewGormRequestNumberGenerator creates a new GormRequestNumberGenerator
func NewGormRequestNumberGenerator(db *gorm.DB) *GormRequestNumberGenerator {
	return &GormRequestNumberGenerator{db: db}
}

// Next returns the tenant's next request number. Numbers burned by failed
// creations leave gaps.
func (g *GormRequestNumberGenerator) Next(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var next int64
	if err := g.db.WithContext(ctx).Raw(nextRequestNumberSQL, tenantID).Scan(&next).Error; err != nil {
		return 0, fmt.Errorf("next request number: %w", err)
	}
	if next <= 0 {
		return 0, fmt.Errorf("next request number: counter returned %d", next)
	}
	return next, nil
}

// Ensure GormRequestNumberGenerator implements RequestNumberGenerator
var _ fundrequest.RequestNumberGenerator = (*GormRequestNumberGenerator)(nil)
