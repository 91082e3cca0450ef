package event

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor delivers outbox entries to the notification sink in the background.
// Failed deliveries are retried with backoff; exhausted entries are dead-lettered.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	sink       shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	sink shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	defaults := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	return &OutboxProcessor{
		repo:       repo,
		sink:       sink,
		serializer: serializer,
		config:     config,
		logger:     logger.Named("outbox"),
		now:        time.Now,
	}
}

// Start launches the delivery loop and, when a retention is configured, the cleanup loop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx, "outbox.relay", p.config.PollInterval, func(ctx context.Context) { p.ProcessOnce(ctx) })

	if p.config.CleanupRetention > 0 {
		p.wg.Add(1)
		go p.loop(ctx, "outbox.cleanup", p.config.CleanupInterval, p.cleanup)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for them to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop runs fn every interval. Profile samples taken while fn runs carry the
// operation name.
func (p *OutboxProcessor) loop(ctx context.Context, operation string, interval time.Duration, fn func(context.Context)) {
	defer p.wg.Done()

	labels := telemetry.OperationLabels(operation, map[string]string{
		"batch_size": strconv.Itoa(p.config.BatchSize),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.WithProfilingLabels(ctx, labels, fn)
		}
	}
}

// ProcessOnce claims one batch of due entries and delivers it. It returns the
// number of entries delivered successfully.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	entries, err := p.repo.ClaimBatch(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range entries {
		if p.deliver(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.sink.Publish(ctx, event)
	}
	if err != nil {
		p.fail(ctx, entry, err)
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return false
	}
	p.logger.Debug("event delivered",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return true
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error())

	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.Int("retry_count", entry.RetryCount),
		zap.Error(cause),
	}
	if entry.Status == shared.OutboxStatusDead {
		p.logger.Warn("event moved to dead letter queue", fields...)
	} else {
		p.logger.Error("failed to deliver event", fields...)
	}

	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update entry", zap.Error(err))
	}
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to clean up outbox entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
