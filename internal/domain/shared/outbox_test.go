package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	BaseDomainEvent
}

func newTestEntry() *OutboxEntry {
	ev := &testEvent{BaseDomainEvent: NewBaseDomainEvent("TestEvent", "Test", uuid.New(), uuid.New())}
	return NewOutboxEntry(ev, []byte(`{}`))
}

func TestNewOutboxEntry(t *testing.T) {
	entry := newTestEntry()

	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, "TestEvent", entry.EventType)
	assert.Equal(t, "Test", entry.AggregateType)
	assert.Equal(t, DefaultOutboxMaxRetries, entry.MaxRetries)
	assert.NotEqual(t, uuid.Nil, entry.TenantID)
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("schedules retry with backoff", func(t *testing.T) {
		entry := newTestEntry()
		require.NoError(t, entry.MarkProcessing())

		before := time.Now()
		entry.MarkFailed("broker down")

		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, 1, entry.RetryCount)
		assert.Equal(t, "broker down", entry.LastError)
		require.NotNil(t, entry.NextRetryAt)
		assert.True(t, entry.NextRetryAt.After(before))
	})

	t.Run("dead letters after max retries", func(t *testing.T) {
		entry := newTestEntry()
		entry.MaxRetries = 2
		entry.MarkFailed("first")
		entry.MarkFailed("second")

		assert.Equal(t, OutboxStatusDead, entry.Status)
		assert.Nil(t, entry.NextRetryAt)
	})
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	entry := newTestEntry()
	require.NoError(t, entry.MarkProcessing())
	assert.Error(t, entry.MarkProcessing())

	entry.MarkSent()
	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	entry := newTestEntry()
	assert.Error(t, entry.ResetForRetry())

	entry.MaxRetries = 1
	entry.MarkFailed("boom")
	require.NoError(t, entry.ResetForRetry())
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Zero(t, entry.RetryCount)
	assert.Empty(t, entry.LastError)
}
