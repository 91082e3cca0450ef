package models

import (
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundRequestModel is the persistence model for the FundRequest aggregate root
type FundRequestModel struct {
	ID                 uuid.UUID            `gorm:"type:uuid;primaryKey"`
	TenantID           uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_fund_requests_tenant_number,priority:1"`
	RequestNumber      int64                `gorm:"not null;uniqueIndex:idx_fund_requests_tenant_number,priority:2"`
	Beneficiary        string               `gorm:"type:varchar(200);not null"`
	Amount             decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Currency           fundrequest.Currency `gorm:"type:varchar(3);not null"`
	Description        string               `gorm:"type:text;not null"`
	RequestDate        time.Time            `gorm:"type:date;not null;index"`
	Status             fundrequest.Status   `gorm:"type:varchar(30);not null;index"`
	RequesterID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	RequesterName      string               `gorm:"type:varchar(200)"`
	RejectedFromStatus *fundrequest.Status  `gorm:"type:varchar(30)"`
	RejectionReason    string               `gorm:"type:varchar(1000)"`
	PaymentReference   string               `gorm:"type:varchar(100)"`
	PaymentProofKey    string               `gorm:"type:varchar(500)"`
	SubmittedAt        *time.Time
	ReviewedAt         *time.Time
	ValidatedAt        *time.Time
	PaidAt             *time.Time
	RejectedAt         *time.Time
	Version            int       `gorm:"not null;default:1"`
	CreatedAt          time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FundRequestModel) TableName() string {
	return "fund_requests"
}

// ToDomain converts the persistence model to a domain FundRequest
func (m *FundRequestModel) ToDomain() *fundrequest.FundRequest {
	return &fundrequest.FundRequest{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			ID:        m.ID,
			TenantID:  m.TenantID,
			Version:   m.Version,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		RequestNumber:       m.RequestNumber,
		Beneficiary:         m.Beneficiary,
		Amount:              m.Amount,
		Currency:            m.Currency,
		Description:         m.Description,
		RequestDate:         m.RequestDate,
		Status:              m.Status,
		RequesterID:         m.RequesterID,
		RequesterName:       m.RequesterName,
		RejectedFromStatus:  m.RejectedFromStatus,
		RejectionReason:     m.RejectionReason,
		PaymentReference:    m.PaymentReference,
		PaymentProofKey:     m.PaymentProofKey,
		SubmittedAt:         m.SubmittedAt,
		ReviewedAt:          m.ReviewedAt,
		ValidatedAt:         m.ValidatedAt,
		PaidAt:              m.PaidAt,
		RejectedAt:          m.RejectedAt,
	}
}

// FromDomain populates the persistence model from a domain FundRequest
func (m *FundRequestModel) FromDomain(r *fundrequest.FundRequest) {
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.Version = r.Version
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	m.RequestNumber = r.RequestNumber
	m.Beneficiary = r.Beneficiary
	m.Amount = r.Amount
	m.Currency = r.Currency
	m.Description = r.Description
	m.RequestDate = r.RequestDate
	m.Status = r.Status
	m.RequesterID = r.RequesterID
	m.RequesterName = r.RequesterName
	m.RejectedFromStatus = r.RejectedFromStatus
	m.RejectionReason = r.RejectionReason
	m.PaymentReference = r.PaymentReference
	m.PaymentProofKey = r.PaymentProofKey
	m.SubmittedAt = r.SubmittedAt
	m.ReviewedAt = r.ReviewedAt
	m.ValidatedAt = r.ValidatedAt
	m.PaidAt = r.PaidAt
	m.RejectedAt = r.RejectedAt
}

// FundRequestModelFromDomain creates a new persistence model from a domain FundRequest
func FundRequestModelFromDomain(r *fundrequest.FundRequest) *FundRequestModel {
	m := &FundRequestModel{}
	m.FromDomain(r)
	return m
}

// RequestSequenceModel stores the last issued request number of a tenant
type RequestSequenceModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastValue int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RequestSequenceModel) TableName() string {
	return "fund_request_sequences"
}
