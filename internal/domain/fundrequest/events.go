package fundrequest

import (
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeFundRequestCreated     = "FundRequestCreated"
	EventTypeFundRequestSubmitted   = "FundRequestSubmitted"
	EventTypeFundRequestReviewed    = "FundRequestReviewed"
	EventTypeFundRequestValidated   = "FundRequestValidated"
	EventTypeFundRequestPaid        = "FundRequestPaid"
	EventTypeFundRequestRejected    = "FundRequestRejected"
	EventTypeFundRequestResubmitted = "FundRequestResubmitted"
)

var eventTypeByAction = map[Action]string{
	ActionSubmit:   EventTypeFundRequestSubmitted,
	ActionReview:   EventTypeFundRequestReviewed,
	ActionValidate: EventTypeFundRequestValidated,
	ActionPay:      EventTypeFundRequestPaid,
	ActionReject:   EventTypeFundRequestRejected,
	ActionResubmit: EventTypeFundRequestResubmitted,
}

// StatusChangeEventTypes lists the event types emitted by transitions
func StatusChangeEventTypes() []string {
	return []string{
		EventTypeFundRequestSubmitted,
		EventTypeFundRequestReviewed,
		EventTypeFundRequestValidated,
		EventTypeFundRequestPaid,
		EventTypeFundRequestRejected,
		EventTypeFundRequestResubmitted,
	}
}

// FundRequestCreatedEvent is raised when a fund request is created
type FundRequestCreatedEvent struct {
	shared.BaseDomainEvent
	RequestNumber int64           `json:"request_number"`
	Beneficiary   string          `json:"beneficiary"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      Currency        `json:"currency"`
	Status        Status          `json:"status"`
	RequesterID   uuid.UUID       `json:"requester_id"`
}

// NewFundRequestCreatedEvent creates a FundRequestCreatedEvent
func NewFundRequestCreatedEvent(req *FundRequest) *FundRequestCreatedEvent {
	return &FundRequestCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFundRequestCreated, AggregateType, req.ID, req.TenantID),
		RequestNumber:   req.RequestNumber,
		Beneficiary:     req.Beneficiary,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          req.Status,
		RequesterID:     req.RequesterID,
	}
}

// FundRequestStatusChangedEvent is raised for every successful transition.
// Its event type names the action, e.g. FundRequestPaid.
type FundRequestStatusChangedEvent struct {
	shared.BaseDomainEvent
	RequestNumber   int64           `json:"request_number"`
	FromStatus      Status          `json:"from_status"`
	ToStatus        Status          `json:"to_status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        Currency        `json:"currency"`
	RequesterID     uuid.UUID       `json:"requester_id"`
	PerformedBy     uuid.UUID       `json:"performed_by"`
	PerformedByName string          `json:"performed_by_name"`
	Reason          string          `json:"reason,omitempty"`
}

// NewFundRequestStatusChangedEvent creates a FundRequestStatusChangedEvent
func NewFundRequestStatusChangedEvent(req *FundRequest, from Status, action Action, actor Actor) *FundRequestStatusChangedEvent {
	return &FundRequestStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventTypeByAction[action], AggregateType, req.ID, req.TenantID),
		RequestNumber:   req.RequestNumber,
		FromStatus:      from,
		ToStatus:        req.Status,
		Amount:          req.Amount,
		Currency:        req.Currency,
		RequesterID:     req.RequesterID,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.DisplayName,
		Reason:          req.RejectionReason,
	}
}
