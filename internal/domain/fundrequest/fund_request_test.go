package fundrequest

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFundRequest(t *testing.T) {
	t.Run("creates a draft with a creation entry", func(t *testing.T) {
		req, entry, err := NewFundRequest(testTenantID, requesterActor(), validInput())
		require.NoError(t, err)

		assert.Equal(t, StatusDraft, req.Status)
		assert.Equal(t, testTenantID, req.TenantID)
		assert.Equal(t, requesterActor().UserID, req.RequesterID)
		assert.Equal(t, "Alice Mbuyi", req.RequesterName)
		assert.Equal(t, 1, req.Version)
		assert.Equal(t, "FR-000001", req.Reference())

		require.NotNil(t, entry)
		assert.Nil(t, entry.FromStatus)
		assert.Equal(t, StatusDraft, entry.ToStatus)
		assert.Equal(t, ActionCreate, entry.Action)
		assert.Equal(t, "Creation", entry.ActionLabel)
		assert.Equal(t, req.ID, entry.FundRequestID)

		events := req.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeFundRequestCreated, events[0].EventType())
	})

	t.Run("creates directly as submitted", func(t *testing.T) {
		in := validInput()
		in.Submit = true

		req, entry, err := NewFundRequest(testTenantID, requesterActor(), in)
		require.NoError(t, err)

		assert.Equal(t, StatusSubmitted, req.Status)
		assert.NotNil(t, req.SubmittedAt)
		assert.Nil(t, entry.FromStatus)
		assert.Equal(t, StatusSubmitted, entry.ToStatus)
		assert.Equal(t, ActionSubmit, entry.Action)
	})

	tests := []struct {
		name   string
		mutate func(in *NewFundRequestInput)
	}{
		{"zero amount", func(in *NewFundRequestInput) { in.Amount = decimal.Zero }},
		{"negative amount", func(in *NewFundRequestInput) { in.Amount = decimal.NewFromInt(-10) }},
		{"unsupported currency", func(in *NewFundRequestInput) { in.Currency = "EUR" }},
		{"missing description", func(in *NewFundRequestInput) { in.Description = "   " }},
		{"missing beneficiary", func(in *NewFundRequestInput) { in.Beneficiary = "" }},
		{"future date", func(in *NewFundRequestInput) { in.RequestDate = time.Now().AddDate(0, 0, 2) }},
		{"missing date", func(in *NewFundRequestInput) { in.RequestDate = time.Time{} }},
		{"missing number", func(in *NewFundRequestInput) { in.RequestNumber = 0 }},
	}
	for _, tc := range tests {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			req, entry, err := NewFundRequest(testTenantID, requesterActor(), in)

			assert.True(t, errors.Is(err, shared.ErrValidation), "got %v", err)
			assert.Nil(t, req)
			assert.Nil(t, entry)
		})
	}

	t.Run("accepts today", func(t *testing.T) {
		in := validInput()
		in.RequestDate = time.Now()
		_, _, err := NewFundRequest(testTenantID, requesterActor(), in)
		assert.NoError(t, err)
	})

	t.Run("requires organization and requester", func(t *testing.T) {
		_, _, err := NewFundRequest(uuid.Nil, requesterActor(), validInput())
		assert.True(t, errors.Is(err, shared.ErrValidation))

		_, _, err = NewFundRequest(testTenantID, Actor{}, validInput())
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestFundRequest_FullLifecycle(t *testing.T) {
	steps := DefaultSteps(testTenantID)
	req, created, err := NewFundRequest(testTenantID, requesterActor(), validInput())
	require.NoError(t, err)

	history := []*HistoryEntry{created}
	apply := func(target Status, actor Actor, in TransitionInput) {
		t.Helper()
		entry, err := req.Transition(target, actor, steps, in)
		require.NoError(t, err)
		history = append(history, entry)
	}

	apply(StatusSubmitted, requesterActor(), TransitionInput{})
	apply(StatusAccountingReview, actorWith("accountant"), TransitionInput{Comment: "documents checked"})
	apply(StatusValidated, actorWith("manager"), TransitionInput{})
	apply(StatusPaid, actorWith("cashier"), TransitionInput{PaymentReference: "CHQ-0042"})

	assert.Equal(t, StatusPaid, req.Status)
	assert.Equal(t, "CHQ-0042", req.PaymentReference)
	assert.NotNil(t, req.ReviewedAt)
	assert.NotNil(t, req.ValidatedAt)
	assert.NotNil(t, req.PaidAt)
	assert.Equal(t, 5, req.Version)

	require.Len(t, history, 5)
	assert.Nil(t, history[0].FromStatus)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].ToStatus, *history[i].FromStatus)
	}
	assert.Equal(t, "documents checked", history[2].Comment)

	t.Run("paid is irreversible", func(t *testing.T) {
		for _, target := range AllStatuses {
			_, err := req.Transition(target, actorWith("cashier", "manager", "accountant"), steps, TransitionInput{Reason: "x"})
			assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
		}
	})
}

func TestFundRequest_RejectAndResubmit(t *testing.T) {
	steps := DefaultSteps(testTenantID)
	req := newDraft(t)

	_, err := req.Transition(StatusSubmitted, requesterActor(), steps, TransitionInput{})
	require.NoError(t, err)
	_, err = req.Transition(StatusAccountingReview, actorWith("accountant"), steps, TransitionInput{})
	require.NoError(t, err)

	entry, err := req.Transition(StatusRejected, actorWith("manager"), steps, TransitionInput{Reason: "Missing invoice"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	require.NotNil(t, req.RejectedFromStatus)
	assert.Equal(t, StatusAccountingReview, *req.RejectedFromStatus)
	assert.Equal(t, "Missing invoice", req.RejectionReason)
	assert.Equal(t, "Missing invoice", entry.Comment)

	entry, err = req.Transition(StatusSubmitted, requesterActor(), steps, TransitionInput{})
	require.NoError(t, err)
	assert.Equal(t, ActionResubmit, entry.Action)
	assert.Equal(t, StatusSubmitted, req.Status)
	assert.Nil(t, req.RejectedFromStatus)
	assert.Empty(t, req.RejectionReason)

	var types []string
	for _, ev := range req.GetDomainEvents() {
		types = append(types, ev.EventType())
	}
	assert.Equal(t, []string{
		EventTypeFundRequestSubmitted,
		EventTypeFundRequestReviewed,
		EventTypeFundRequestRejected,
		EventTypeFundRequestResubmitted,
	}, types)
}

func TestFundRequest_AttachPaymentProof(t *testing.T) {
	steps := DefaultSteps(testTenantID)

	t.Run("requires paid status", func(t *testing.T) {
		req := requestAt(t, StatusValidated)
		err := req.AttachPaymentProof("proofs/a.pdf", actorWith("cashier"), steps)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
	})

	t.Run("requires the paying role", func(t *testing.T) {
		req := requestAt(t, StatusPaid)
		err := req.AttachPaymentProof("proofs/a.pdf", actorWith("accountant"), steps)
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})

	t.Run("stores the key", func(t *testing.T) {
		req := requestAt(t, StatusPaid)
		version := req.Version
		require.NoError(t, req.AttachPaymentProof("proofs/a.pdf", actorWith("cashier"), steps))
		assert.Equal(t, "proofs/a.pdf", req.PaymentProofKey)
		assert.Equal(t, version+1, req.Version)
	})
}

func TestStatus_Ordinal(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusDraft, 0},
		{StatusSubmitted, 1},
		{StatusAccountingReview, 2},
		{StatusValidated, 3},
		{StatusPaid, 4},
		{StatusRejected, -1},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.status.Ordinal())
			assert.True(t, tc.status.IsValid())
		})
	}
	assert.False(t, Status("archived").IsValid())
}
