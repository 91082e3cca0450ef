package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes a sort direction to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when the whitelist allows it and defaultField otherwise.
// Column names are interpolated into ORDER BY, so nothing outside the whitelist gets through.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// FundRequestSortFields are the fund request columns a listing may be ordered by
var FundRequestSortFields = map[string]bool{
	"request_number": true,
	"request_date":   true,
	"amount":         true,
	"status":         true,
	"beneficiary":    true,
	"created_at":     true,
	"updated_at":     true,
}
