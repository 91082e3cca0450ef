package fundrequest

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is an immutable audit record of one workflow transition.
// The first entry of a request has a nil FromStatus.
type HistoryEntry struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	FundRequestID   uuid.UUID `json:"fund_request_id"`
	Action          Action    `json:"action"`
	ActionLabel     string    `json:"action_label"`
	FromStatus      *Status   `json:"from_status"`
	ToStatus        Status    `json:"to_status"`
	PerformedBy     uuid.UUID `json:"performed_by"`
	PerformedByName string    `json:"performed_by_name"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	// Sequence is assigned by the ledger on append and orders entries by insertion
	Sequence int64 `json:"sequence"`
}

func newHistoryEntry(req *FundRequest, action Action, label string, from *Status, actor Actor, comment string) *HistoryEntry {
	return &HistoryEntry{
		ID:              uuid.New(),
		TenantID:        req.TenantID,
		FundRequestID:   req.ID,
		Action:          action,
		ActionLabel:     label,
		FromStatus:      from,
		ToStatus:        req.Status,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.DisplayName,
		Comment:         comment,
		CreatedAt:       time.Now(),
	}
}
