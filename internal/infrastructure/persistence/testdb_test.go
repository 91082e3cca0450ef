package persistence

import (
	"context"
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

// newTestDB opens an in-memory SQLite database with the fund request schema.
// A single connection keeps every statement on the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.FundRequestModel{},
		&models.RequestSequenceModel{},
		&models.WorkflowStepModel{},
		&models.HistoryEntryModel{},
		&models.OutboxEntryModel{},
	))
	return db
}

var (
	tenantA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	tenantB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
)

func requester() fundrequest.Actor {
	return fundrequest.NewActor(uuid.MustParse("cccccccc-0000-0000-0000-000000000003"), "Alice Mbuyi", "requester")
}

func newRequest(t *testing.T, tenantID uuid.UUID, number int64) (*fundrequest.FundRequest, *fundrequest.HistoryEntry) {
	t.Helper()
	req, entry, err := fundrequest.NewFundRequest(tenantID, requester(), fundrequest.NewFundRequestInput{
		RequestNumber: number,
		Beneficiary:   "Kinshasa Office Supplies",
		Amount:        decimal.NewFromInt(250),
		Currency:      fundrequest.CurrencyUSD,
		Description:   "Printer cartridges",
		RequestDate:   time.Now().AddDate(0, 0, -1),
		Language:      language.English,
	})
	require.NoError(t, err)
	return req, entry
}

// recordingSaver stands in for the outbox and remembers the events it saw
type recordingSaver struct {
	events []shared.DomainEvent
	err    error
}

func (s *recordingSaver) SaveEvents(_ context.Context, _ any, events ...shared.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}
