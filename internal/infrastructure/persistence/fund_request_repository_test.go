package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormFundRequestRepository_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	saver := &recordingSaver{}
	repo.SetOutboxSaver(saver)
	ctx := context.Background()

	req, entry := newRequest(t, tenantA, 1)
	require.NoError(t, repo.Create(ctx, req, entry))

	assert.Empty(t, req.GetDomainEvents(), "events are cleared once persisted")
	require.Len(t, saver.events, 1)
	assert.Equal(t, fundrequest.EventTypeFundRequestCreated, saver.events[0].EventType())
	assert.Equal(t, int64(1), entry.Sequence)

	found, err := repo.FindByID(ctx, tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.RequestNumber, found.RequestNumber)
	assert.Equal(t, fundrequest.StatusDraft, found.Status)
	assert.True(t, req.Amount.Equal(found.Amount))
	assert.Equal(t, 1, found.Version)

	_, err = repo.FindByID(ctx, tenantB, req.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "requests are scoped to their tenant")
}

func TestGormFundRequestRepository_CreateDuplicateNumber(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	ctx := context.Background()

	first, entry := newRequest(t, tenantA, 7)
	require.NoError(t, repo.Create(ctx, first, entry))

	dup, dupEntry := newRequest(t, tenantA, 7)
	err := repo.Create(ctx, dup, dupEntry)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	other, otherEntry := newRequest(t, tenantB, 7)
	assert.NoError(t, repo.Create(ctx, other, otherEntry), "numbers are unique per tenant only")
}

func TestGormFundRequestRepository_CreateRollsBackOnOutboxFailure(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	repo.SetOutboxSaver(&recordingSaver{err: errors.New("outbox down")})
	ctx := context.Background()

	req, entry := newRequest(t, tenantA, 1)
	require.Error(t, repo.Create(ctx, req, entry))

	_, err := repo.FindByID(ctx, tenantA, req.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	count, err := NewGormHistoryRepository(db).CountByRequest(ctx, tenantA, req.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormFundRequestRepository_UpdateIfStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	history := NewGormHistoryRepository(db)
	ctx := context.Background()
	steps := fundrequest.DefaultSteps(tenantA)

	req, entry := newRequest(t, tenantA, 1)
	require.NoError(t, repo.Create(ctx, req, entry))

	fromStatus, fromVersion := req.Status, req.Version
	submit, err := req.Transition(fundrequest.StatusSubmitted, requester(), steps, fundrequest.TransitionInput{})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateIfStatus(ctx, req, fromStatus, fromVersion, submit))
	assert.Equal(t, int64(2), submit.Sequence)

	stored, err := repo.FindByID(ctx, tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, fundrequest.StatusSubmitted, stored.Status)
	assert.Equal(t, 2, stored.Version)
	assert.NotNil(t, stored.SubmittedAt)

	entries, err := history.FindByRequest(ctx, tenantA, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].FromStatus)
	require.NotNil(t, entries[1].FromStatus)
	assert.Equal(t, fundrequest.StatusDraft, *entries[1].FromStatus)
	assert.Equal(t, fundrequest.StatusSubmitted, entries[1].ToStatus)
}

// Two reviewers load the same submitted request; only the first write lands.
func TestGormFundRequestRepository_UpdateIfStatus_StaleWriterLoses(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	history := NewGormHistoryRepository(db)
	ctx := context.Background()
	steps := fundrequest.DefaultSteps(tenantA)
	accountant := fundrequest.NewActor(uuid.New(), "Bob", "accountant")

	req, entry := newRequest(t, tenantA, 1)
	require.NoError(t, repo.Create(ctx, req, entry))
	submit, err := req.Transition(fundrequest.StatusSubmitted, requester(), steps, fundrequest.TransitionInput{})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateIfStatus(ctx, req, fundrequest.StatusDraft, 1, submit))

	first, err := repo.FindByID(ctx, tenantA, req.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, tenantA, req.ID)
	require.NoError(t, err)

	review, err := first.Transition(fundrequest.StatusAccountingReview, accountant, steps, fundrequest.TransitionInput{})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateIfStatus(ctx, first, fundrequest.StatusSubmitted, 2, review))

	reject, err := second.Transition(fundrequest.StatusRejected, accountant, steps, fundrequest.TransitionInput{Reason: "Missing invoice"})
	require.NoError(t, err)
	err = repo.UpdateIfStatus(ctx, second, fundrequest.StatusSubmitted, 2, reject)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.True(t, shared.IsConflict(err))

	stored, err := repo.FindByID(ctx, tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, fundrequest.StatusAccountingReview, stored.Status)
	assert.Nil(t, stored.RejectedFromStatus)

	count, err := history.CountByRequest(ctx, tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "the losing writer appends no history")
}

func TestGormFundRequestRepository_FindAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	ctx := context.Background()
	steps := fundrequest.DefaultSteps(tenantA)

	for i := int64(1); i <= 5; i++ {
		req, entry := newRequest(t, tenantA, i)
		if i == 5 {
			req.Beneficiary = "Lubumbashi Transport"
		}
		require.NoError(t, repo.Create(ctx, req, entry))
		if i%2 == 0 {
			e, err := req.Transition(fundrequest.StatusSubmitted, requester(), steps, fundrequest.TransitionInput{})
			require.NoError(t, err)
			require.NoError(t, repo.UpdateIfStatus(ctx, req, fundrequest.StatusDraft, 1, e))
		}
	}
	other, otherEntry := newRequest(t, tenantB, 1)
	require.NoError(t, repo.Create(ctx, other, otherEntry))

	t.Run("pages newest first", func(t *testing.T) {
		page, total, err := repo.FindAll(ctx, tenantA, fundrequest.ListFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, page, 2)
		assert.Equal(t, int64(5), page[0].RequestNumber)
		assert.Equal(t, int64(4), page[1].RequestNumber)
	})

	t.Run("by status", func(t *testing.T) {
		status := fundrequest.StatusSubmitted
		rows, total, err := repo.FindAll(ctx, tenantA, fundrequest.ListFilter{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		for _, r := range rows {
			assert.Equal(t, fundrequest.StatusSubmitted, r.Status)
		}
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		rows, total, err := repo.FindAll(ctx, tenantA, fundrequest.ListFilter{Search: "lubumbashi"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(5), rows[0].RequestNumber)
	})

	t.Run("by requester", func(t *testing.T) {
		id := uuid.New()
		_, total, err := repo.FindAll(ctx, tenantA, fundrequest.ListFilter{RequesterID: &id})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestGormFundRequestRepository_FindAll_SearchIsLiteral(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFundRequestRepository(db)
	ctx := context.Background()

	descriptions := []string{
		"Avance 50% mission Goma",
		"Avance 500 USD mission Goma",
		"Frais_bancaires mars",
		"Frais bancaires avril",
		`Dossier C:\caisse`,
	}
	for i, d := range descriptions {
		req, entry := newRequest(t, tenantA, int64(i+1))
		req.Description = d
		require.NoError(t, repo.Create(ctx, req, entry))
	}

	tests := []struct {
		search   string
		expected []int64
	}{
		{"50%", []int64{1}},
		{"%", []int64{1}},
		{"n_g", nil},
		{"frais_", []int64{3}},
		{`c:\c`, []int64{5}},
		{"avance 50", []int64{2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			rows, total, err := repo.FindAll(ctx, tenantA, fundrequest.ListFilter{Search: tt.search, Page: 1, PageSize: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.expected)), total)
			got := make([]int64, 0, len(rows))
			for _, r := range rows {
				got = append(got, r.RequestNumber)
			}
			assert.ElementsMatch(t, tt.expected, got)
		})
	}
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%plain%", containsPattern("plain"))
	assert.Equal(t, `%50\%%`, containsPattern("50%"))
	assert.Equal(t, `%a\_b%`, containsPattern("a_b"))
	assert.Equal(t, `%C:\\x%`, containsPattern(`C:\x`))
}

// The conditional update must carry the expected status and version in its WHERE clause.
func TestGormFundRequestRepository_UpdateIfStatus_SQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	repo := NewGormFundRequestRepository(db)
	req, _ := newRequest(t, tenantA, 3)
	_, err = req.Transition(fundrequest.StatusSubmitted, requester(), fundrequest.DefaultSteps(tenantA), fundrequest.TransitionInput{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "fund_requests" SET`) + `.*` +
		regexp.QuoteMeta(`WHERE id = $`) + `\d+` + regexp.QuoteMeta(` AND tenant_id = $`) + `\d+` +
		regexp.QuoteMeta(` AND status = $`) + `\d+` + regexp.QuoteMeta(` AND version = $`) + `\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.UpdateIfStatus(context.Background(), req, fundrequest.StatusDraft, 1, nil)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
