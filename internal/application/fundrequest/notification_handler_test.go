package fundrequest

import (
	"context"
	"testing"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNotifier struct {
	sent []WorkflowNotification
}

func (n *recordingNotifier) Notify(_ context.Context, notification WorkflowNotification) error {
	n.sent = append(n.sent, notification)
	return nil
}

func newNotificationHandler() (*WorkflowNotificationHandler, *recordingNotifier, *StepService) {
	steps := NewStepService(newMemorySteps())
	notifier := &recordingNotifier{}
	handler := NewWorkflowNotificationHandler(steps, zap.NewNop()).WithNotifier(notifier)
	return handler, notifier, steps
}

func statusChanged(t *testing.T, from, to fundrequest.Status) *fundrequest.FundRequestStatusChangedEvent {
	t.Helper()
	req := submittedRequest(t)
	req.Status = to
	req.RejectionReason = "Missing invoice"
	action, ok := fundrequest.ActionFor(from, to)
	require.True(t, ok)
	return fundrequest.NewFundRequestStatusChangedEvent(req, from, action, accountant())
}

func TestWorkflowNotificationHandler_EventTypes(t *testing.T) {
	handler, _, _ := newNotificationHandler()

	types := handler.EventTypes()

	assert.Contains(t, types, fundrequest.EventTypeFundRequestCreated)
	assert.Contains(t, types, fundrequest.EventTypeFundRequestPaid)
	assert.Len(t, types, 7)
}

func TestWorkflowNotificationHandler_NotifiesNextRole(t *testing.T) {
	tests := []struct {
		from, to fundrequest.Status
		want     fundrequest.Role
	}{
		{fundrequest.StatusDraft, fundrequest.StatusSubmitted, fundrequest.RoleAccountant},
		{fundrequest.StatusSubmitted, fundrequest.StatusAccountingReview, fundrequest.RoleManager},
		{fundrequest.StatusAccountingReview, fundrequest.StatusValidated, fundrequest.RoleCashier},
	}
	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			handler, notifier, _ := newNotificationHandler()

			err := handler.Handle(context.Background(), statusChanged(t, tt.from, tt.to))

			require.NoError(t, err)
			require.Len(t, notifier.sent, 1)
			assert.Equal(t, tt.want, notifier.sent[0].RecipientRole)
			assert.Nil(t, notifier.sent[0].RecipientUserID)
			assert.Equal(t, "FR-000007", notifier.sent[0].Reference)
		})
	}
}

func TestWorkflowNotificationHandler_NotifiesRequesterOfOutcome(t *testing.T) {
	handler, notifier, _ := newNotificationHandler()

	require.NoError(t, handler.Handle(context.Background(), statusChanged(t, fundrequest.StatusSubmitted, fundrequest.StatusRejected)))
	require.NoError(t, handler.Handle(context.Background(), statusChanged(t, fundrequest.StatusValidated, fundrequest.StatusPaid)))

	require.Len(t, notifier.sent, 2)
	for _, n := range notifier.sent {
		require.NotNil(t, n.RecipientUserID)
		assert.Equal(t, requesterID, *n.RecipientUserID)
	}
	assert.Contains(t, notifier.sent[0].Message, "Missing invoice")
}

func TestWorkflowNotificationHandler_DraftIsSilent(t *testing.T) {
	handler, notifier, _ := newNotificationHandler()
	req, _, err := fundrequest.NewFundRequest(tenantID, requester(), fundrequest.NewFundRequestInput{
		RequestNumber: 3,
		Beneficiary:   "Goma Branch",
		Amount:        submittedRequest(t).Amount,
		Currency:      fundrequest.CurrencyUSD,
		Description:   "Rent",
		RequestDate:   submittedRequest(t).RequestDate,
	})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), fundrequest.NewFundRequestCreatedEvent(req)))

	assert.Empty(t, notifier.sent)
}

func TestWorkflowNotificationHandler_MissingStepIsSkipped(t *testing.T) {
	handler, notifier, steps := newNotificationHandler()
	ctx := context.Background()
	active, err := steps.ListActiveSteps(ctx, tenantID)
	require.NoError(t, err)
	_, err = steps.SetStepActive(ctx, tenantID, admin(), active[1].ID, false)
	require.NoError(t, err)

	err = handler.Handle(ctx, statusChanged(t, fundrequest.StatusDraft, fundrequest.StatusSubmitted))

	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

type foreignEvent struct {
	shared.BaseDomainEvent
}

func TestWorkflowNotificationHandler_UnexpectedEvent(t *testing.T) {
	handler, _, _ := newNotificationHandler()
	event := &foreignEvent{BaseDomainEvent: shared.NewBaseDomainEvent("Other", "Other", uuid.New(), tenantID)}

	err := handler.Handle(context.Background(), event)

	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	err := notifier.Notify(context.Background(), WorkflowNotification{
		TenantID:      tenantID,
		FundRequestID: uuid.New(),
		Reference:     "FR-000001",
		Status:        fundrequest.StatusSubmitted,
		RecipientRole: fundrequest.RoleAccountant,
		Message:       "awaits the accountant",
	})

	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "workflow notification", entry.Message)
	assert.Equal(t, "accountant", entry.ContextMap()["recipient_role"])
}
