package event

import (
	"context"
	"testing"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestOutboxPublisher_SaveEventsInTransaction(t *testing.T) {
	db := newOutboxDB(t)
	publisher := NewOutboxPublisher(NewFundRequestSerializer())
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()
	_, events := submittedRequest(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.SaveEvents(ctx, tx, events...)
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimBatch(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, events[0].EventID(), claimed[0].EventID)
	assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)

	again, err := repo.ClaimBatch(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed entries are not handed out twice")

	assert.Error(t, publisher.SaveEvents(ctx, "not a tx", events...))
}

func TestOutboxPublisher_RollbackDiscardsEvents(t *testing.T) {
	db := newOutboxDB(t)
	publisher := NewOutboxPublisher(NewFundRequestSerializer())
	ctx := context.Background()
	_, events := submittedRequest(t)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, publisher.SaveEvents(ctx, tx, events...))
		return assert.AnError
	})

	claimed, err := NewGormOutboxRepository(db).ClaimBatch(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestOutboxProcessor_DeliversAndRetries(t *testing.T) {
	db := newOutboxDB(t)
	serializer := NewFundRequestSerializer()
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()
	_, events := submittedRequest(t)
	require.NoError(t, NewOutboxPublisher(serializer).PublishWithTx(ctx, db, events...))

	sink := &failingSink{remaining: 1}
	processor := NewOutboxProcessor(repo, sink, serializer, OutboxProcessorConfig{BatchSize: 10}, zap.NewNop())

	assert.Equal(t, 0, processor.ProcessOnce(ctx), "first delivery fails")
	entry, err := repo.FindByID(ctx, mustOnlyEntryID(t, db))
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.NextRetryAt)

	assert.Equal(t, 0, processor.ProcessOnce(ctx), "not due before the backoff elapses")

	processor.now = func() time.Time { return time.Now().Add(time.Minute) }
	assert.Equal(t, 1, processor.ProcessOnce(ctx))
	require.Len(t, sink.published, 1)
	assert.Equal(t, events[0].EventID(), sink.published[0].EventID())

	entry, err = repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)

	deleted, err := repo.DeleteSentBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestOutboxProcessor_DeadLetters(t *testing.T) {
	db := newOutboxDB(t)
	serializer := NewFundRequestSerializer()
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()
	_, events := submittedRequest(t)
	require.NoError(t, NewOutboxPublisher(serializer).PublishWithTx(ctx, db, events...))

	sink := &failingSink{remaining: 100}
	processor := NewOutboxProcessor(repo, sink, serializer, OutboxProcessorConfig{BatchSize: 10}, zap.NewNop())
	for i := 0; i < shared.DefaultOutboxMaxRetries; i++ {
		processor.now = func() time.Time { return time.Now().Add(time.Hour) }
		processor.ProcessOnce(ctx)
	}

	dead, err := repo.FindDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, shared.DefaultOutboxMaxRetries, dead[0].RetryCount)
	assert.NotEmpty(t, dead[0].LastError)
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	db := newOutboxDB(t)
	processor := NewOutboxProcessor(NewGormOutboxRepository(db), &failingSink{}, NewFundRequestSerializer(),
		OutboxProcessorConfig{PollInterval: 10 * time.Millisecond, CleanupRetention: time.Hour}, zap.NewNop())

	require.NoError(t, processor.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, processor.Stop(ctx))
}

func mustOnlyEntryID(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	var ids []string
	require.NoError(t, db.Table("outbox_events").Pluck("id", &ids).Error)
	require.Len(t, ids, 1)
	return uuid.MustParse(ids[0])
}
