package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultIdempotencyTTL is how long a processed event ID is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStats is a snapshot of an idempotent handler's counters
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// IdempotentHandler wraps an EventHandler so each event ID is handled once,
// even when the outbox redelivers it.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	ttl     time.Duration
	logger  *zap.Logger

	processed atomic.Int64
	duplicate atomic.Int64
	failed    atomic.Int64
}

// NewIdempotentHandler creates a new idempotent handler wrapper. A non-positive
// ttl selects DefaultIdempotencyTTL.
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentHandler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotentHandler{
		handler: handler,
		store:   store,
		ttl:     ttl,
		logger:  logger,
	}
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle processes the event unless its ID was already marked
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	eventID := event.EventID().String()

	isNew, err := h.store.MarkProcessed(ctx, eventID, h.ttl)
	if err != nil {
		// A duplicate notification is preferable to a lost one
		h.logger.Warn("failed to check idempotency, processing anyway",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	} else if !isNew {
		h.duplicate.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		return err
	}
	h.processed.Add(1)
	return nil
}

// Stats returns a snapshot of the handler's counters
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: h.processed.Load(),
		EventsDuplicate: h.duplicate.Load(),
		EventsFailed:    h.failed.Load(),
	}
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)
