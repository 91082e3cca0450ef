package fundrequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowNotification tells a role or a user that a fund request needs their attention
type WorkflowNotification struct {
	TenantID      uuid.UUID          `json:"tenant_id"`
	FundRequestID uuid.UUID          `json:"fund_request_id"`
	Reference     string             `json:"reference"`
	Status        fundrequest.Status `json:"status"`
	// Exactly one of RecipientRole and RecipientUserID is set
	RecipientRole   fundrequest.Role `json:"recipient_role,omitempty"`
	RecipientUserID *uuid.UUID       `json:"recipient_user_id,omitempty"`
	Message         string           `json:"message"`
}

// WorkflowNotifier delivers workflow notifications to people
type WorkflowNotifier interface {
	Notify(ctx context.Context, n WorkflowNotification) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, notification WorkflowNotification) error {
	fields := []zap.Field{
		zap.String("tenant_id", notification.TenantID.String()),
		zap.String("fund_request_id", notification.FundRequestID.String()),
		zap.String("reference", notification.Reference),
		zap.String("status", string(notification.Status)),
		zap.String("message", notification.Message),
	}
	if notification.RecipientUserID != nil {
		fields = append(fields, zap.String("recipient_user_id", notification.RecipientUserID.String()))
	} else {
		fields = append(fields, zap.String("recipient_role", string(notification.RecipientRole)))
	}
	n.logger.Info("workflow notification", fields...)
	return nil
}

// WorkflowNotificationHandler turns fund request events into notifications for
// whoever must act next, or for the requester once the outcome is known.
type WorkflowNotificationHandler struct {
	steps    *StepService
	notifier WorkflowNotifier
	logger   *zap.Logger
}

// NewWorkflowNotificationHandler creates a handler that notifies through the log by default
func NewWorkflowNotificationHandler(steps *StepService, logger *zap.Logger) *WorkflowNotificationHandler {
	return &WorkflowNotificationHandler{
		steps:    steps,
		notifier: NewLogNotifier(logger),
		logger:   logger,
	}
}

// WithNotifier sets the notifier used to deliver notifications
func (h *WorkflowNotificationHandler) WithNotifier(notifier WorkflowNotifier) *WorkflowNotificationHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *WorkflowNotificationHandler) EventTypes() []string {
	return append([]string{fundrequest.EventTypeFundRequestCreated}, fundrequest.StatusChangeEventTypes()...)
}

// Handle processes fund request created and status changed events
func (h *WorkflowNotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var (
		status    fundrequest.Status
		number    int64
		requester uuid.UUID
		reason    string
	)
	switch e := event.(type) {
	case *fundrequest.FundRequestCreatedEvent:
		status, number, requester = e.Status, e.RequestNumber, e.RequesterID
	case *fundrequest.FundRequestStatusChangedEvent:
		status, number, requester, reason = e.ToStatus, e.RequestNumber, e.RequesterID, e.Reason
	default:
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	n := WorkflowNotification{
		TenantID:      event.TenantID(),
		FundRequestID: event.AggregateID(),
		Reference:     fundrequest.FormatRequestNumber(number),
		Status:        status,
	}

	switch status {
	case fundrequest.StatusDraft:
		return nil
	case fundrequest.StatusPaid:
		n.RecipientUserID = &requester
		n.Message = fmt.Sprintf("Fund request %s has been paid", n.Reference)
	case fundrequest.StatusRejected:
		n.RecipientUserID = &requester
		n.Message = fmt.Sprintf("Fund request %s was rejected: %s", n.Reference, reason)
	default:
		role, err := h.nextRole(ctx, event.TenantID(), status)
		if err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) && de.Code == shared.CodeMisconfigured {
				h.logger.Warn("no workflow step owns the next stage, skipping notification",
					zap.String("fund_request_id", n.FundRequestID.String()),
					zap.String("status", string(status)),
					zap.Error(err),
				)
				return nil
			}
			return err
		}
		n.RecipientRole = role
		n.Message = fmt.Sprintf("Fund request %s is %s and awaits the %s", n.Reference, status, role)
	}

	return h.notifier.Notify(ctx, n)
}

// nextRole resolves who performs the forward transition out of status
func (h *WorkflowNotificationHandler) nextRole(ctx context.Context, tenantID uuid.UUID, status fundrequest.Status) (fundrequest.Role, error) {
	steps, err := h.steps.ListActiveSteps(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, next := range fundrequest.NextStatuses(status) {
		if next == fundrequest.StatusRejected {
			continue
		}
		return fundrequest.RequiredRole(steps, status, next)
	}
	return "", shared.NewConfigurationError(fmt.Sprintf("No forward transition from %s", status))
}
