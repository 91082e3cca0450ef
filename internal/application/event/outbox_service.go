package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// deadLetterBatch bounds how many dead letters are loaded at once
const deadLetterBatch = 100

// OutboxService lets operators inspect the outbox and requeue dead-lettered
// workflow events. It is not tenant scoped.
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger.Named("outbox_admin")}
}

// OutboxEntryResponse is the operator view of an outbox entry. AggregateID is
// the fund request the event belongs to.
type OutboxEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxStats counts entries per delivery status
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// GetDeadLetterEntries lists up to limit dead entries. Limits outside
// 1..deadLetterBatch are clamped to deadLetterBatch.
func (s *OutboxService) GetDeadLetterEntries(ctx context.Context, limit int) ([]OutboxEntryResponse, error) {
	if limit < 1 || limit > deadLetterBatch {
		limit = deadLetterBatch
	}
	entries, err := s.repo.FindDead(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list dead letters", zap.Error(err))
		return nil, err
	}
	out := make([]OutboxEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toOutboxEntryResponse(e))
	}
	return out, nil
}

// GetEntry returns one entry by ID
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryResponse, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toOutboxEntryResponse(entry)
	return &resp, nil
}

// RetryDeadEntry puts a dead entry back in the pending queue with a fresh retry budget
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryResponse, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requeue(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("Dead letter requeued",
		zap.String("entry_id", id.String()),
		zap.String("event_type", entry.EventType),
		zap.String("fund_request_id", entry.AggregateID.String()),
	)
	resp := toOutboxEntryResponse(entry)
	return &resp, nil
}

// RetryAllDeadEntries requeues every dead entry batch by batch and returns how
// many were requeued. Update failures are joined into the returned error.
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for {
		batch, err := s.repo.FindDead(ctx, deadLetterBatch)
		if err != nil {
			s.logger.Error("Failed to list dead letters", zap.Error(err))
			return total, err
		}

		moved := 0
		for _, entry := range batch {
			if err := s.requeue(ctx, entry); err != nil {
				errs = append(errs, err)
				continue
			}
			moved++
		}
		total += int64(moved)

		// requeued entries drop out of the dead set; stop once a batch makes no progress
		if len(batch) < deadLetterBatch || moved == 0 {
			break
		}
	}
	s.logger.Info("Dead letters requeued", zap.Int64("count", total), zap.Int("failures", len(errs)))
	return total, errors.Join(errs...)
}

func (s *OutboxService) requeue(ctx context.Context, entry *shared.OutboxEntry) error {
	if err := entry.ResetForRetry(); err != nil {
		return shared.NewInvalidTransitionError(err.Error())
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to requeue outbox entry", zap.Error(err), zap.String("entry_id", entry.ID.String()))
		return err
	}
	return nil
}

// GetStats counts entries per status
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to count outbox entries", zap.Error(err))
		return nil, err
	}

	stats := &OutboxStats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func toOutboxEntryResponse(e *shared.OutboxEntry) OutboxEntryResponse {
	return OutboxEntryResponse{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
