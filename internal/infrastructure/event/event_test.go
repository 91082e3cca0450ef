package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testTenant = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.OutboxEntryModel{}))
	return db
}

// submittedRequest returns a freshly submitted request and its pending events
func submittedRequest(t *testing.T) (*fundrequest.FundRequest, []shared.DomainEvent) {
	t.Helper()
	requester := fundrequest.NewActor(uuid.New(), "Alice", "requester")
	req, _, err := fundrequest.NewFundRequest(testTenant, requester, fundrequest.NewFundRequestInput{
		RequestNumber: 12,
		Beneficiary:   "Goma Fuel Station",
		Amount:        decimal.NewFromInt(80),
		Currency:      fundrequest.CurrencyCDF,
		Description:   "Generator fuel",
		RequestDate:   time.Now(),
		Submit:        true,
		Language:      language.French,
	})
	require.NoError(t, err)
	return req, req.GetDomainEvents()
}

// recordingHandler collects the events it receives
type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
	panics bool
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

// memoryStore is a minimal idempotency store
type memoryStore struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (s *memoryStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *memoryStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key], nil
}

func (s *memoryStore) Close() error { return nil }

// failingSink fails the first n publishes
type failingSink struct {
	mu        sync.Mutex
	remaining int
	published []shared.DomainEvent
}

func (s *failingSink) Publish(_ context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining > 0 {
		s.remaining--
		return errors.New("sink unavailable")
	}
	s.published = append(s.published, events...)
	return nil
}
