package fundrequest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var testTenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func requesterActor() Actor {
	return NewActor(uuid.MustParse("22222222-2222-2222-2222-222222222222"), "Alice Mbuyi", "requester")
}

func actorWith(roles ...string) Actor {
	return NewActor(uuid.New(), "Reviewer", roles...)
}

func validInput() NewFundRequestInput {
	return NewFundRequestInput{
		RequestNumber: 1,
		Beneficiary:   "Kinshasa Office Supplies",
		Amount:        decimal.NewFromInt(500),
		Currency:      CurrencyUSD,
		Description:   "Printer cartridges",
		RequestDate:   time.Now().AddDate(0, 0, -1),
		Language:      language.English,
	}
}

func newDraft(t *testing.T) *FundRequest {
	t.Helper()
	req, _, err := NewFundRequest(testTenantID, requesterActor(), validInput())
	require.NoError(t, err)
	req.ClearDomainEvents()
	return req
}

// requestAt builds a request already sitting in the given status
func requestAt(t *testing.T, status Status) *FundRequest {
	t.Helper()
	req := newDraft(t)
	req.Status = status
	if status == StatusRejected {
		from := StatusAccountingReview
		req.RejectedFromStatus = &from
	}
	return req
}
