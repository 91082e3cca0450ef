package fundrequest

// Status represents the workflow status of a fund request
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusAccountingReview Status = "accounting_review"
	StatusValidated        Status = "validated"
	StatusPaid             Status = "paid"
	StatusRejected         Status = "rejected"
)

// RejectedOrdinal is the ordinal sentinel of the rejected status
const RejectedOrdinal = -1

// AllStatuses lists every status in workflow order, rejected last
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusAccountingReview,
	StatusValidated,
	StatusPaid,
	StatusRejected,
}

// IsValid checks if the status is a defined Status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusAccountingReview,
		StatusValidated, StatusPaid, StatusRejected:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// Ordinal maps the status to its position in the workflow.
// It is compared against WorkflowStep.StepOrder.
func (s Status) Ordinal() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSubmitted:
		return 1
	case StatusAccountingReview:
		return 2
	case StatusValidated:
		return 3
	case StatusPaid:
		return 4
	default:
		return RejectedOrdinal
	}
}

// IsTerminal reports whether no forward transition leaves this status
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// Currency is a supported request currency
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCDF Currency = "CDF"
)

// IsValid checks if the currency is supported
func (c Currency) IsValid() bool {
	return c == CurrencyUSD || c == CurrencyCDF
}
