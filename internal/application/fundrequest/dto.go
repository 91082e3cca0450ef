package fundrequest

import (
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// ==================== Fund Request DTOs ====================

// CreateFundRequestRequest represents a request to create a fund request
type CreateFundRequestRequest struct {
	Beneficiary string          `json:"beneficiary" binding:"required,min=1,max=200"`
	Amount      decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Currency    string          `json:"currency" binding:"required,oneof=USD CDF"`
	Description string          `json:"description" binding:"required,min=1,max=2000"`
	// RequestDate defaults to today
	RequestDate *time.Time `json:"request_date"`
	// Submit creates the request directly in the submitted status
	Submit   bool         `json:"submit"`
	Language language.Tag `json:"-"`
}

// TransitionRequest represents a request to move a fund request to another status
type TransitionRequest struct {
	TargetStatus     string `json:"target_status" binding:"required,oneof=submitted accounting_review validated paid rejected"`
	Comment          string `json:"comment" binding:"max=1000"`
	Reason           string `json:"reason" binding:"max=1000"`
	PaymentReference string `json:"payment_reference" binding:"max=100"`
	// ExpectedStatus, when set, is the status the client saw; the transition
	// fails with a conflict if the request has moved since.
	ExpectedStatus string       `json:"expected_status" binding:"omitempty,oneof=draft submitted accounting_review validated paid rejected"`
	Language       language.Tag `json:"-"`
}

// ActionRequest represents the body of the shortcut transition endpoints
type ActionRequest struct {
	Comment          string       `json:"comment" binding:"max=1000"`
	PaymentReference string       `json:"payment_reference" binding:"max=100"`
	ExpectedStatus   string       `json:"expected_status" binding:"omitempty,oneof=draft submitted accounting_review validated paid rejected"`
	Language         language.Tag `json:"-"`
}

// RejectRequest represents a request to reject a fund request
type RejectRequest struct {
	Reason         string       `json:"reason" binding:"required,min=1,max=1000"`
	ExpectedStatus string       `json:"expected_status" binding:"omitempty,oneof=submitted accounting_review validated"`
	Language       language.Tag `json:"-"`
}

// FundRequestListFilter represents the query of a fund request listing
type FundRequestListFilter struct {
	Status      string     `form:"status" binding:"omitempty,oneof=draft submitted accounting_review validated paid rejected"`
	RequesterID *uuid.UUID `form:"requester_id"`
	From        *time.Time `form:"from" time_format:"2006-01-02"`
	To          *time.Time `form:"to" time_format:"2006-01-02"`
	Search      string     `form:"search" binding:"max=100"`
	OrderBy     string     `form:"order_by" binding:"omitempty,max=50"`
	OrderDir    string     `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
	Page        int        `form:"page" binding:"omitempty,min=1"`
	PageSize    int        `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// FundRequestResponse represents a fund request in API responses
type FundRequestResponse struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           uuid.UUID       `json:"tenant_id"`
	RequestNumber      int64           `json:"request_number"`
	Reference          string          `json:"reference"`
	Beneficiary        string          `json:"beneficiary"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Description        string          `json:"description"`
	RequestDate        time.Time       `json:"request_date"`
	Status             string          `json:"status"`
	RequesterID        uuid.UUID       `json:"requester_id"`
	RequesterName      string          `json:"requester_name"`
	RejectedFromStatus *string         `json:"rejected_from_status,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`
	HasPaymentProof    bool            `json:"has_payment_proof"`
	NextStatuses       []string        `json:"next_statuses"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
	ValidatedAt        *time.Time      `json:"validated_at,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// FundRequestListItemResponse represents a fund request in list responses
type FundRequestListItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	RequestNumber int64           `json:"request_number"`
	Reference     string          `json:"reference"`
	Beneficiary   string          `json:"beneficiary"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	RequestDate   time.Time       `json:"request_date"`
	Status        string          `json:"status"`
	RequesterName string          `json:"requester_name"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FundRequestListResult represents a paginated fund request listing
type FundRequestListResult = shared.Paginated[FundRequestListItemResponse]

// HistoryEntryResponse represents one history ledger entry
type HistoryEntryResponse struct {
	ID              uuid.UUID `json:"id"`
	Sequence        int64     `json:"sequence"`
	Action          string    `json:"action"`
	ActionLabel     string    `json:"action_label"`
	FromStatus      *string   `json:"from_status"`
	ToStatus        string    `json:"to_status"`
	PerformedBy     uuid.UUID `json:"performed_by"`
	PerformedByName string    `json:"performed_by_name"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProgressResponse represents the progress projection of a fund request
type ProgressResponse struct {
	FundRequestID uuid.UUID                  `json:"fund_request_id"`
	Status        string                     `json:"status"`
	Steps         []fundrequest.StepProgress `json:"steps"`
}

// PaymentProofURLResponse represents a temporary download link for a payment proof
type PaymentProofURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ==================== Workflow Step DTOs ====================

// CreateStepRequest represents a request to add a workflow step
type CreateStepRequest struct {
	StepName        string `json:"step_name" binding:"required,min=1,max=100"`
	StepOrder       int    `json:"step_order" binding:"required,min=1"`
	ResponsibleRole string `json:"responsible_role" binding:"required,oneof=requester accountant manager cashier admin director auditor"`
}

// UpdateStepRequest represents a request to rename a step or change its role
type UpdateStepRequest struct {
	StepName        *string `json:"step_name" binding:"omitempty,min=1,max=100"`
	ResponsibleRole *string `json:"responsible_role" binding:"omitempty,oneof=requester accountant manager cashier admin director auditor"`
}

// SetStepActiveRequest represents a request to toggle a step
type SetStepActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// StepResponse represents a workflow step in API responses
type StepResponse struct {
	ID              uuid.UUID `json:"id"`
	StepName        string    `json:"step_name"`
	StepOrder       int       `json:"step_order"`
	ResponsibleRole string    `json:"responsible_role"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ==================== Conversions ====================

// ToFundRequestResponse converts a domain fund request to a response DTO
func ToFundRequestResponse(req *fundrequest.FundRequest) FundRequestResponse {
	resp := FundRequestResponse{
		ID:               req.ID,
		TenantID:         req.TenantID,
		RequestNumber:    req.RequestNumber,
		Reference:        req.Reference(),
		Beneficiary:      req.Beneficiary,
		Amount:           req.Amount,
		Currency:         string(req.Currency),
		Description:      req.Description,
		RequestDate:      req.RequestDate,
		Status:           string(req.Status),
		RequesterID:      req.RequesterID,
		RequesterName:    req.RequesterName,
		RejectionReason:  req.RejectionReason,
		PaymentReference: req.PaymentReference,
		HasPaymentProof:  req.PaymentProofKey != "",
		NextStatuses:     statusStrings(fundrequest.NextStatuses(req.Status)),
		SubmittedAt:      req.SubmittedAt,
		ReviewedAt:       req.ReviewedAt,
		ValidatedAt:      req.ValidatedAt,
		PaidAt:           req.PaidAt,
		RejectedAt:       req.RejectedAt,
		Version:          req.Version,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
	if req.RejectedFromStatus != nil {
		s := string(*req.RejectedFromStatus)
		resp.RejectedFromStatus = &s
	}
	return resp
}

// ToFundRequestListItemResponses converts domain fund requests to list item DTOs
func ToFundRequestListItemResponses(reqs []fundrequest.FundRequest) []FundRequestListItemResponse {
	items := make([]FundRequestListItemResponse, len(reqs))
	for i := range reqs {
		r := &reqs[i]
		items[i] = FundRequestListItemResponse{
			ID:            r.ID,
			RequestNumber: r.RequestNumber,
			Reference:     r.Reference(),
			Beneficiary:   r.Beneficiary,
			Amount:        r.Amount,
			Currency:      string(r.Currency),
			RequestDate:   r.RequestDate,
			Status:        string(r.Status),
			RequesterName: r.RequesterName,
			UpdatedAt:     r.UpdatedAt,
		}
	}
	return items
}

// ToHistoryEntryResponses converts ledger entries to response DTOs
func ToHistoryEntryResponses(entries []fundrequest.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{
			ID:              e.ID,
			Sequence:        e.Sequence,
			Action:          string(e.Action),
			ActionLabel:     e.ActionLabel,
			ToStatus:        string(e.ToStatus),
			PerformedBy:     e.PerformedBy,
			PerformedByName: e.PerformedByName,
			Comment:         e.Comment,
			CreatedAt:       e.CreatedAt,
		}
		if e.FromStatus != nil {
			from := string(*e.FromStatus)
			out[i].FromStatus = &from
		}
	}
	return out
}

// ToStepResponse converts a workflow step to a response DTO
func ToStepResponse(s *fundrequest.WorkflowStep) StepResponse {
	return StepResponse{
		ID:              s.ID,
		StepName:        s.StepName,
		StepOrder:       s.StepOrder,
		ResponsibleRole: string(s.ResponsibleRole),
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// ToStepResponses converts workflow steps to response DTOs
func ToStepResponses(steps []fundrequest.WorkflowStep) []StepResponse {
	out := make([]StepResponse, len(steps))
	for i := range steps {
		out[i] = ToStepResponse(&steps[i])
	}
	return out
}

func statusStrings(statuses []fundrequest.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
