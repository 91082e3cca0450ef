package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
)

// InMemoryIdempotencyStore implements IdempotencyStore with a map.
// It only deduplicates within one process.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates the store and starts its expiry sweeper
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(5 * time.Minute)
	return s
}

// MarkProcessed returns true if eventID was not marked or its mark expired
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[eventID] = now.Add(ttl)
	return true, nil
}

// IsProcessed checks if an event has an unexpired mark
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[eventID]
	return ok && s.now().Before(exp), nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, id)
		}
	}
}

// Size returns the number of tracked event IDs
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

// Ensure InMemoryIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
