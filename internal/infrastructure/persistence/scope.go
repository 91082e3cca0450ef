package persistence

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// tenantScope restricts a query to one tenant's rows
func tenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// tenantRowScope restricts a query to a single row of a tenant
func tenantRowScope(tenantID, id uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ? AND id = ?", tenantID, id)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching text literally anywhere in
// a value. Queries using it must declare ESCAPE '\'.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}
