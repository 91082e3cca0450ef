package fundrequest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func createRequest(amount int64, submit bool) CreateFundRequestRequest {
	yesterday := time.Now().AddDate(0, 0, -1)
	return CreateFundRequestRequest{
		Beneficiary: "Kinshasa Office Supplies",
		Amount:      decimal.NewFromInt(amount),
		Currency:    "USD",
		Description: "Printer cartridges",
		RequestDate: &yesterday,
		Submit:      submit,
		Language:    language.English,
	}
}

func mustCreate(t *testing.T, f *workflowFixture, submit bool) *FundRequestResponse {
	t.Helper()
	resp, err := f.service.Create(context.Background(), tenantID, requester(), createRequest(500, submit))
	require.NoError(t, err)
	return resp
}

func moveTo(t *testing.T, f *workflowFixture, id uuid.UUID, actor fundrequest.Actor, target fundrequest.Status) *FundRequestResponse {
	t.Helper()
	resp, err := f.service.Transition(context.Background(), tenantID, actor, id, TransitionRequest{
		TargetStatus: string(target),
		Reason:       "Missing invoice",
	})
	require.NoError(t, err)
	return resp
}

func historyCount(t *testing.T, f *workflowFixture, id uuid.UUID) int64 {
	t.Helper()
	n, err := f.requests.CountByRequest(context.Background(), tenantID, id)
	require.NoError(t, err)
	return n
}

func TestFundRequestService_Create(t *testing.T) {
	t.Run("creates a draft with the next request number", func(t *testing.T) {
		f := newWorkflowFixture()

		first := mustCreate(t, f, false)
		second := mustCreate(t, f, false)

		assert.Equal(t, "draft", first.Status)
		assert.Equal(t, int64(1), first.RequestNumber)
		assert.Equal(t, int64(2), second.RequestNumber)
		assert.Equal(t, "FR-000002", second.Reference)
		assert.Equal(t, []string{"submitted"}, first.NextStatuses)
		assert.Len(t, f.requests.events, 2)
	})

	t.Run("creates directly in submitted", func(t *testing.T) {
		f := newWorkflowFixture()

		resp := mustCreate(t, f, true)

		assert.Equal(t, "submitted", resp.Status)
		assert.NotNil(t, resp.SubmittedAt)
		entries, err := f.service.History(context.Background(), tenantID, resp.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].FromStatus)
		assert.Equal(t, "submitted", entries[0].ToStatus)
	})

	t.Run("normalizes the currency code", func(t *testing.T) {
		f := newWorkflowFixture()
		req := createRequest(75, false)
		req.Currency = "cdf"

		resp, err := f.service.Create(context.Background(), tenantID, requester(), req)

		require.NoError(t, err)
		assert.Equal(t, "CDF", resp.Currency)
	})
}

func TestFundRequestService_Create_InvalidInputPerformsNoWrite(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateFundRequestRequest)
	}{
		{"zero amount", func(r *CreateFundRequestRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *CreateFundRequestRequest) { r.Amount = decimal.NewFromInt(-10) }},
		{"unsupported currency", func(r *CreateFundRequestRequest) { r.Currency = "EUR" }},
		{"empty description", func(r *CreateFundRequestRequest) { r.Description = "  " }},
		{"future date", func(r *CreateFundRequestRequest) {
			tomorrow := time.Now().AddDate(0, 0, 2)
			r.RequestDate = &tomorrow
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockFundRequestRepository)
			numbers := new(MockRequestNumberGenerator)
			service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), numbers)

			req := createRequest(500, false)
			tt.mutate(&req)
			_, err := service.Create(context.Background(), tenantID, requester(), req)

			assert.ErrorIs(t, err, shared.ErrValidation)
			numbers.AssertNotCalled(t, "Next", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestFundRequestService_Create_NumberGeneratorFailure(t *testing.T) {
	repo := new(MockFundRequestRepository)
	numbers := new(MockRequestNumberGenerator)
	numbers.On("Next", mock.Anything, tenantID).Return(int64(0), errors.New("connection reset"))
	service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), numbers)

	_, err := service.Create(context.Background(), tenantID, requester(), createRequest(500, false))

	assert.ErrorContains(t, err, "next request number")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

// Draft request for 500 USD submitted by its requester
func TestFundRequestService_SubmitDraft(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, false)

	resp, err := f.service.Submit(context.Background(), tenantID, requester(), created.ID, ActionRequest{Language: language.English})
	require.NoError(t, err)
	assert.Equal(t, "submitted", resp.Status)

	entries, err := f.service.History(context.Background(), tenantID, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].FromStatus)
	assert.Equal(t, "draft", entries[0].ToStatus)
	require.NotNil(t, entries[1].FromStatus)
	assert.Equal(t, "draft", *entries[1].FromStatus)
	assert.Equal(t, "submitted", entries[1].ToStatus)
	assert.Equal(t, "Submission", entries[1].ActionLabel)
	assert.Equal(t, int64(2), entries[1].Sequence)
}

func TestFundRequestService_SkippingStagesIsInvalid(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, false)

	_, err := f.service.Transition(context.Background(), tenantID, cashier(), created.ID, TransitionRequest{
		TargetStatus: string(fundrequest.StatusPaid),
	})

	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Equal(t, int64(1), historyCount(t, f, created.ID))
}

func TestFundRequestService_WrongRoleIsUnauthorized(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, true)

	_, err := f.service.Review(context.Background(), tenantID, requester(), created.ID, ActionRequest{})

	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	got, err := f.service.GetByID(context.Background(), tenantID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "submitted", got.Status)
	assert.Equal(t, int64(1), historyCount(t, f, created.ID))
}

func TestFundRequestService_RejectAndResubmit(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	created := mustCreate(t, f, false)

	moveTo(t, f, created.ID, requester(), fundrequest.StatusSubmitted)
	moveTo(t, f, created.ID, accountant(), fundrequest.StatusAccountingReview)

	rejected, err := f.service.Reject(ctx, tenantID, accountant(), created.ID, RejectRequest{Reason: "Missing invoice"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.Status)
	require.NotNil(t, rejected.RejectedFromStatus)
	assert.Equal(t, "accounting_review", *rejected.RejectedFromStatus)
	assert.Equal(t, "Missing invoice", rejected.RejectionReason)

	_, err = f.service.Resubmit(ctx, tenantID, fundrequest.NewActor(uuid.New(), "Someone Else", "requester"), created.ID, ActionRequest{})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	resubmitted, err := f.service.Resubmit(ctx, tenantID, requester(), created.ID, ActionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "submitted", resubmitted.Status)
	assert.Nil(t, resubmitted.RejectedFromStatus)

	entries, err := f.service.History(ctx, tenantID, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	want := []string{"draft", "submitted", "accounting_review", "rejected", "submitted"}
	for i, e := range entries {
		assert.Equal(t, want[i], e.ToStatus)
		if i > 0 {
			require.NotNil(t, e.FromStatus)
			assert.Equal(t, want[i-1], *e.FromStatus)
		}
	}
	assert.Equal(t, "Missing invoice", entries[3].Comment)
}

func TestFundRequestService_RejectRequiresReason(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, true)

	_, err := f.service.Reject(context.Background(), tenantID, accountant(), created.ID, RejectRequest{Reason: " "})

	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFundRequestService_FullWorkflow(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	created := mustCreate(t, f, true)

	moveTo(t, f, created.ID, accountant(), fundrequest.StatusAccountingReview)
	moveTo(t, f, created.ID, director(), fundrequest.StatusValidated)
	paid, err := f.service.Pay(ctx, tenantID, cashier(), created.ID, ActionRequest{PaymentReference: "CHQ-0042"})
	require.NoError(t, err)

	assert.Equal(t, "paid", paid.Status)
	assert.Equal(t, "CHQ-0042", paid.PaymentReference)
	assert.Empty(t, paid.NextStatuses)
	assert.Equal(t, int64(4), historyCount(t, f, created.ID))

	_, err = f.service.Reject(ctx, tenantID, cashier(), created.ID, RejectRequest{Reason: "Too late"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestFundRequestService_MissingStepIsConfigurationError(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	created := mustCreate(t, f, true)

	steps, err := f.stepSvc.ListSteps(ctx, tenantID, true)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	_, err = f.stepSvc.SetStepActive(ctx, tenantID, admin(), steps[1].ID, false)
	require.NoError(t, err)

	_, err = f.service.Review(ctx, tenantID, accountant(), created.ID, ActionRequest{})

	assert.ErrorIs(t, err, shared.ErrMisconfigured)
	assert.Equal(t, int64(1), historyCount(t, f, created.ID))
}

// barrierRequests holds the first two reads until both have happened, so two
// transitions are guaranteed to act on the same observed status.
type barrierRequests struct {
	*memoryRequests
	reads   atomic.Int32
	arrived sync.WaitGroup
}

func (b *barrierRequests) FindByID(ctx context.Context, tenant, id uuid.UUID) (*fundrequest.FundRequest, error) {
	r, err := b.memoryRequests.FindByID(ctx, tenant, id)
	if b.reads.Add(1) <= 2 {
		b.arrived.Done()
		b.arrived.Wait()
	}
	return r, err
}

func TestFundRequestService_ConcurrentTransitionsOneWins(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, true)

	racing := &barrierRequests{memoryRequests: f.requests}
	racing.arrived.Add(2)
	service := NewFundRequestService(racing, f.requests, f.stepSvc, f.numbers)

	requests := []TransitionRequest{
		{TargetStatus: string(fundrequest.StatusAccountingReview)},
		{TargetStatus: string(fundrequest.StatusRejected), Reason: "Duplicate request"},
	}
	errs := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req TransitionRequest) {
			defer wg.Done()
			_, errs[i] = service.Transition(context.Background(), tenantID, accountant(), created.ID, req)
		}(i, req)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case shared.IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, int64(2), historyCount(t, f, created.ID))
}

// submittedRequest builds a persisted-looking request in submitted status
func submittedRequest(t *testing.T) *fundrequest.FundRequest {
	t.Helper()
	req, _, err := fundrequest.NewFundRequest(tenantID, requester(), fundrequest.NewFundRequestInput{
		RequestNumber: 7,
		Beneficiary:   "Lubumbashi Depot",
		Amount:        decimal.NewFromInt(1200),
		Currency:      fundrequest.CurrencyCDF,
		Description:   "Fuel",
		RequestDate:   time.Now(),
		Submit:        true,
	})
	require.NoError(t, err)
	req.ClearDomainEvents()
	return req
}

func copyOf(r *fundrequest.FundRequest) *fundrequest.FundRequest {
	c := *r
	return &c
}

func TestFundRequestService_Transition_RetriesOnceWhenStatusUnchanged(t *testing.T) {
	repo := new(MockFundRequestRepository)
	service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), newMemoryNumbers())
	req := submittedRequest(t)
	// the second read sees a newer version with the same status
	bumped := copyOf(req)
	bumped.Version++

	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(copyOf(req), nil).Once()
	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(bumped, nil).Once()
	repo.On("UpdateIfStatus", mock.Anything, mock.Anything, fundrequest.StatusSubmitted, req.Version, mock.Anything).
		Return(shared.ErrConcurrencyConflict).Once()
	repo.On("UpdateIfStatus", mock.Anything, mock.Anything, fundrequest.StatusSubmitted, bumped.Version, mock.Anything).
		Return(nil).Once()

	resp, err := service.Review(context.Background(), tenantID, accountant(), req.ID, ActionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "accounting_review", resp.Status)
	repo.AssertNumberOfCalls(t, "FindByID", 2)
	repo.AssertNumberOfCalls(t, "UpdateIfStatus", 2)
}

func TestFundRequestService_Transition_ConflictWhenStatusMoved(t *testing.T) {
	repo := new(MockFundRequestRepository)
	service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), newMemoryNumbers())
	req := submittedRequest(t)
	moved := copyOf(req)
	moved.Status = fundrequest.StatusAccountingReview
	moved.Version++

	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(copyOf(req), nil).Once()
	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(moved, nil).Once()
	repo.On("UpdateIfStatus", mock.Anything, mock.Anything, fundrequest.StatusSubmitted, req.Version, mock.Anything).
		Return(shared.ErrConcurrencyConflict).Once()

	_, err := service.Reject(context.Background(), tenantID, accountant(), req.ID, RejectRequest{Reason: "Duplicate"})

	assert.True(t, shared.IsConflict(err))
	repo.AssertNumberOfCalls(t, "UpdateIfStatus", 1)
}

func TestFundRequestService_Transition_NoRetryWhenDisabled(t *testing.T) {
	repo := new(MockFundRequestRepository)
	service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), newMemoryNumbers())
	service.SetRetryOnConflict(false)
	req := submittedRequest(t)

	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(copyOf(req), nil).Once()
	repo.On("UpdateIfStatus", mock.Anything, mock.Anything, fundrequest.StatusSubmitted, req.Version, mock.Anything).
		Return(shared.ErrConcurrencyConflict).Once()

	_, err := service.Review(context.Background(), tenantID, accountant(), req.ID, ActionRequest{})

	assert.True(t, shared.IsConflict(err))
	repo.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestFundRequestService_Transition_OtherErrorsAreNotRetried(t *testing.T) {
	repo := new(MockFundRequestRepository)
	service := NewFundRequestService(repo, newMemoryRequests(), NewStepService(newMemorySteps()), newMemoryNumbers())
	req := submittedRequest(t)
	dbErr := errors.New("connection refused")

	repo.On("FindByID", mock.Anything, tenantID, req.ID).Return(copyOf(req), nil).Once()
	repo.On("UpdateIfStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(dbErr).Once()

	_, err := service.Review(context.Background(), tenantID, accountant(), req.ID, ActionRequest{})

	assert.ErrorIs(t, err, dbErr)
	repo.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestFundRequestService_Transition_ExpectedStatusMismatch(t *testing.T) {
	f := newWorkflowFixture()
	created := mustCreate(t, f, true)
	moveTo(t, f, created.ID, accountant(), fundrequest.StatusAccountingReview)

	_, err := f.service.Transition(context.Background(), tenantID, accountant(), created.ID, TransitionRequest{
		TargetStatus:   string(fundrequest.StatusRejected),
		Reason:         "Stale screen",
		ExpectedStatus: string(fundrequest.StatusSubmitted),
	})

	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, int64(2), historyCount(t, f, created.ID))
}

func TestFundRequestService_List(t *testing.T) {
	f := newWorkflowFixture()
	mustCreate(t, f, false)
	mustCreate(t, f, true)
	mustCreate(t, f, true)

	all, err := f.service.List(context.Background(), tenantID, FundRequestListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 20, all.PageSize)
	assert.Equal(t, int64(3), all.Items[0].RequestNumber)

	submitted, err := f.service.List(context.Background(), tenantID, FundRequestListFilter{Status: "submitted"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), submitted.Total)

	_, err = f.service.List(context.Background(), tenantID, FundRequestListFilter{Status: "archived"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFundRequestService_History_UnknownRequest(t *testing.T) {
	f := newWorkflowFixture()

	_, err := f.service.History(context.Background(), tenantID, uuid.New())

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFundRequestService_Progress(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	created := mustCreate(t, f, true)
	moveTo(t, f, created.ID, accountant(), fundrequest.StatusAccountingReview)

	progress, err := f.service.Progress(ctx, tenantID, created.ID)
	require.NoError(t, err)
	states := make([]fundrequest.StepState, len(progress.Steps))
	for i, s := range progress.Steps {
		states[i] = s.State
	}
	assert.Equal(t, []fundrequest.StepState{
		fundrequest.StepCompleted, fundrequest.StepCurrent, fundrequest.StepPending, fundrequest.StepPending,
	}, states)

	moveTo(t, f, created.ID, accountant(), fundrequest.StatusRejected)
	progress, err = f.service.Progress(ctx, tenantID, created.ID)
	require.NoError(t, err)
	for i, s := range progress.Steps {
		states[i] = s.State
	}
	assert.Equal(t, []fundrequest.StepState{
		fundrequest.StepRejected, fundrequest.StepRejected, fundrequest.StepPending, fundrequest.StepPending,
	}, states)
}

func paidRequest(t *testing.T, f *workflowFixture) uuid.UUID {
	t.Helper()
	created := mustCreate(t, f, true)
	moveTo(t, f, created.ID, accountant(), fundrequest.StatusAccountingReview)
	moveTo(t, f, created.ID, director(), fundrequest.StatusValidated)
	moveTo(t, f, created.ID, cashier(), fundrequest.StatusPaid)
	return created.ID
}

func TestFundRequestService_AttachPaymentProof(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	id := paidRequest(t, f)
	body := []byte("%PDF-1.7 receipt")

	resp, err := f.service.AttachPaymentProof(ctx, tenantID, cashier(), id, "application/pdf", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.True(t, resp.HasPaymentProof)
	assert.Len(t, f.proofs.objects, 1)

	url, err := f.service.PaymentProofURL(ctx, tenantID, id)
	require.NoError(t, err)
	assert.Contains(t, url.URL, "payment-proofs/"+tenantID.String()+"/"+id.String())
	assert.True(t, url.ExpiresAt.After(time.Now()))

	// replacing the proof removes the previous object
	_, err = f.service.AttachPaymentProof(ctx, tenantID, cashier(), id, "image/png", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Len(t, f.proofs.objects, 1)
	assert.Len(t, f.proofs.deleted, 1)

	// attaching a proof is not a transition
	assert.Equal(t, int64(4), historyCount(t, f, id))
}

func TestFundRequestService_AttachPaymentProof_Rules(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	body := []byte("receipt")

	unpaid := mustCreate(t, f, true)
	_, err := f.service.AttachPaymentProof(ctx, tenantID, cashier(), unpaid.ID, "application/pdf", bytes.NewReader(body), int64(len(body)))
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	id := paidRequest(t, f)
	_, err = f.service.AttachPaymentProof(ctx, tenantID, accountant(), id, "application/pdf", bytes.NewReader(body), int64(len(body)))
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.service.AttachPaymentProof(ctx, tenantID, cashier(), id, "text/html", bytes.NewReader(body), int64(len(body)))
	assert.ErrorIs(t, err, shared.ErrValidation)

	f.proofs.uploadErr = errors.New("bucket unavailable")
	_, err = f.service.AttachPaymentProof(ctx, tenantID, cashier(), id, "application/pdf", bytes.NewReader(body), int64(len(body)))
	assert.ErrorContains(t, err, "upload payment proof")

	assert.Empty(t, f.proofs.objects)

	_, err = f.service.PaymentProofURL(ctx, tenantID, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFundRequestService_AttachPaymentProof_NoStorage(t *testing.T) {
	service := NewFundRequestService(newMemoryRequests(), newMemoryRequests(), NewStepService(newMemorySteps()), newMemoryNumbers())

	_, err := service.AttachPaymentProof(context.Background(), tenantID, cashier(), uuid.New(), "application/pdf", bytes.NewReader([]byte("x")), 1)

	assert.ErrorIs(t, err, shared.ErrMisconfigured)
}
