package models

import (
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/google/uuid"
)

// HistoryEntryModel is the persistence model of an append-only history ledger row
type HistoryEntryModel struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID           `gorm:"type:uuid;not null;index"`
	FundRequestID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_history_request_sequence,priority:1"`
	Sequence        int64               `gorm:"not null;uniqueIndex:idx_history_request_sequence,priority:2"`
	Action          fundrequest.Action  `gorm:"type:varchar(30);not null"`
	ActionLabel     string              `gorm:"type:varchar(100);not null"`
	FromStatus      *fundrequest.Status `gorm:"type:varchar(30)"`
	ToStatus        fundrequest.Status  `gorm:"type:varchar(30);not null"`
	PerformedBy     uuid.UUID           `gorm:"type:uuid;not null"`
	PerformedByName string              `gorm:"type:varchar(200)"`
	Comment         string              `gorm:"type:text"`
	CreatedAt       time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (HistoryEntryModel) TableName() string {
	return "fund_request_history"
}

// ToDomain converts the persistence model to a domain HistoryEntry
func (m *HistoryEntryModel) ToDomain() fundrequest.HistoryEntry {
	return fundrequest.HistoryEntry{
		ID:              m.ID,
		TenantID:        m.TenantID,
		FundRequestID:   m.FundRequestID,
		Action:          m.Action,
		ActionLabel:     m.ActionLabel,
		FromStatus:      m.FromStatus,
		ToStatus:        m.ToStatus,
		PerformedBy:     m.PerformedBy,
		PerformedByName: m.PerformedByName,
		Comment:         m.Comment,
		CreatedAt:       m.CreatedAt,
		Sequence:        m.Sequence,
	}
}

// HistoryEntryModelFromDomain creates a new persistence model from a domain HistoryEntry
func HistoryEntryModelFromDomain(e *fundrequest.HistoryEntry) *HistoryEntryModel {
	return &HistoryEntryModel{
		ID:              e.ID,
		TenantID:        e.TenantID,
		FundRequestID:   e.FundRequestID,
		Sequence:        e.Sequence,
		Action:          e.Action,
		ActionLabel:     e.ActionLabel,
		FromStatus:      e.FromStatus,
		ToStatus:        e.ToStatus,
		PerformedBy:     e.PerformedBy,
		PerformedByName: e.PerformedByName,
		Comment:         e.Comment,
		CreatedAt:       e.CreatedAt,
	}
}
