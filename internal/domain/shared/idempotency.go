package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event IDs so redelivered events are skipped
type IdempotencyStore interface {
	// MarkProcessed returns true if the key was newly marked, false if it was seen before
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}
