package fundrequest

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// AggregateType is the aggregate name used in events and the outbox
const AggregateType = "FundRequest"

// FundRequest is a request to disburse money to a beneficiary, moved through
// the approval workflow only by Transition.
type FundRequest struct {
	shared.TenantAggregateRoot
	RequestNumber      int64           `json:"request_number"`
	Beneficiary        string          `json:"beneficiary"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           Currency        `json:"currency"`
	Description        string          `json:"description"`
	RequestDate        time.Time       `json:"request_date"`
	Status             Status          `json:"status"`
	RequesterID        uuid.UUID       `json:"requester_id"`
	RequesterName      string          `json:"requester_name"`
	RejectedFromStatus *Status         `json:"rejected_from_status,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`
	PaymentProofKey    string          `json:"payment_proof_key,omitempty"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
	ValidatedAt        *time.Time      `json:"validated_at,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
}

// NewFundRequestInput carries the fields a requester supplies at creation
type NewFundRequestInput struct {
	RequestNumber int64
	Beneficiary   string
	Amount        decimal.Decimal
	Currency      Currency
	Description   string
	RequestDate   time.Time
	// Submit creates the request directly in the submitted status
	Submit   bool
	Language language.Tag
}

// NewFundRequest validates the input and creates a fund request owned by the requester.
// It returns the creation history entry, whose FromStatus is nil.
func NewFundRequest(tenantID uuid.UUID, requester Actor, in NewFundRequestInput) (*FundRequest, *HistoryEntry, error) {
	if in.RequestNumber <= 0 {
		return nil, nil, shared.NewValidationError("Request number must be positive")
	}
	if err := ValidateNewFundRequest(tenantID, requester, in); err != nil {
		return nil, nil, err
	}

	req := &FundRequest{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RequestNumber:       in.RequestNumber,
		Beneficiary:         strings.TrimSpace(in.Beneficiary),
		Amount:              in.Amount,
		Currency:            in.Currency,
		Description:         strings.TrimSpace(in.Description),
		RequestDate:         in.RequestDate,
		Status:              StatusDraft,
		RequesterID:         requester.UserID,
		RequesterName:       requester.DisplayName,
	}

	action := ActionCreate
	if in.Submit {
		req.Status = StatusSubmitted
		now := req.CreatedAt
		req.SubmittedAt = &now
		action = ActionSubmit
	}

	entry := newHistoryEntry(req, action, ActionLabel(in.Language, action), nil, requester, "")
	req.AddDomainEvent(NewFundRequestCreatedEvent(req))
	return req, entry, nil
}

// ValidateNewFundRequest checks creation input except the request number, so
// callers can reject bad input before drawing a number.
func ValidateNewFundRequest(tenantID uuid.UUID, requester Actor, in NewFundRequestInput) error {
	if tenantID == uuid.Nil {
		return shared.NewValidationError("Organization is required")
	}
	if requester.UserID == uuid.Nil {
		return shared.NewValidationError("Requester is required")
	}
	if strings.TrimSpace(in.Beneficiary) == "" {
		return shared.NewValidationError("Beneficiary cannot be empty")
	}
	if len(in.Beneficiary) > 200 {
		return shared.NewValidationError("Beneficiary cannot exceed 200 characters")
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("Amount must be positive")
	}
	if !in.Currency.IsValid() {
		return shared.NewValidationError(fmt.Sprintf("Currency %q is not supported", in.Currency))
	}
	if strings.TrimSpace(in.Description) == "" {
		return shared.NewValidationError("Description cannot be empty")
	}
	if len(in.Description) > 2000 {
		return shared.NewValidationError("Description cannot exceed 2000 characters")
	}
	if in.RequestDate.IsZero() {
		return shared.NewValidationError("Request date is required")
	}
	if dateOnly(in.RequestDate).After(dateOnly(time.Now())) {
		return shared.NewValidationError("Request date cannot be in the future")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TransitionInput carries the optional details of a transition
type TransitionInput struct {
	Comment string
	// Reason is required when rejecting
	Reason           string
	PaymentReference string
	Language         language.Tag
}

// Transition moves the request to target on behalf of actor, checking the transition
// table and the organization's active workflow steps. On success it returns the
// history entry to append; on failure the request is left unchanged.
func (r *FundRequest) Transition(target Status, actor Actor, steps []WorkflowStep, in TransitionInput) (*HistoryEntry, error) {
	if !target.IsValid() {
		return nil, shared.NewInvalidTransitionError(fmt.Sprintf("Unknown status %q", target))
	}
	action, err := authorize(r, target, actor, steps)
	if err != nil {
		return nil, err
	}
	if target == StatusRejected && strings.TrimSpace(in.Reason) == "" {
		return nil, shared.NewValidationError("A rejection reason is required")
	}

	from := r.Status
	now := time.Now()
	switch target {
	case StatusSubmitted:
		r.SubmittedAt = &now
		r.RejectedFromStatus = nil
		r.RejectionReason = ""
		r.RejectedAt = nil
	case StatusAccountingReview:
		r.ReviewedAt = &now
	case StatusValidated:
		r.ValidatedAt = &now
	case StatusPaid:
		r.PaidAt = &now
		r.PaymentReference = strings.TrimSpace(in.PaymentReference)
	case StatusRejected:
		r.RejectedAt = &now
		r.RejectedFromStatus = &from
		r.RejectionReason = strings.TrimSpace(in.Reason)
	}
	r.Status = target
	r.Touch()

	comment := in.Comment
	if target == StatusRejected {
		comment = r.RejectionReason
	}
	entry := newHistoryEntry(r, action, ActionLabel(in.Language, action), &from, actor, comment)
	r.AddDomainEvent(NewFundRequestStatusChangedEvent(r, from, action, actor))
	return entry, nil
}

// AttachPaymentProof records the storage key of the payment proof of a paid request
func (r *FundRequest) AttachPaymentProof(key string, actor Actor, steps []WorkflowStep) error {
	if r.Status != StatusPaid {
		return shared.NewInvalidTransitionError("Payment proof can only be attached to a paid request")
	}
	role, err := RequiredRole(steps, StatusValidated, StatusPaid)
	if err != nil {
		return err
	}
	if !actor.HasRole(role) {
		return shared.NewUnauthorizedError(fmt.Sprintf("The %s role is required to attach a payment proof", role))
	}
	if strings.TrimSpace(key) == "" {
		return shared.NewValidationError("Payment proof key cannot be empty")
	}
	r.PaymentProofKey = key
	r.Touch()
	return nil
}

// Reference returns the human-readable request number
func (r *FundRequest) Reference() string {
	return FormatRequestNumber(r.RequestNumber)
}

// FormatRequestNumber formats a sequential request number for display
func FormatRequestNumber(n int64) string {
	return fmt.Sprintf("FR-%06d", n)
}
