package fundrequest

import (
	"slices"

	"github.com/google/uuid"
)

// Role is an organizational role that can own a workflow step
type Role string

const (
	RoleRequester  Role = "requester"
	RoleAccountant Role = "accountant"
	RoleManager    Role = "manager"
	RoleCashier    Role = "cashier"
	RoleAdmin      Role = "admin"
	RoleDirector   Role = "director"
	RoleAuditor    Role = "auditor"
)

// IsValid checks if the role is a defined Role
func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleAccountant, RoleManager, RoleCashier,
		RoleAdmin, RoleDirector, RoleAuditor:
		return true
	}
	return false
}

// satisfies reports whether holding r is enough to act as required.
// A director may act wherever a manager is expected.
func (r Role) satisfies(required Role) bool {
	if r == required {
		return true
	}
	return required == RoleManager && r == RoleDirector
}

// Actor is the user performing a workflow operation, as resolved by the identity layer
type Actor struct {
	UserID      uuid.UUID
	DisplayName string
	Roles       []Role
}

// NewActor creates an actor, dropping unknown roles
func NewActor(userID uuid.UUID, displayName string, roles ...string) Actor {
	a := Actor{UserID: userID, DisplayName: displayName}
	for _, r := range roles {
		role := Role(r)
		if role.IsValid() && !slices.Contains(a.Roles, role) {
			a.Roles = append(a.Roles, role)
		}
	}
	return a
}

// HasRole reports whether the actor may act in the given role
func (a Actor) HasRole(required Role) bool {
	for _, r := range a.Roles {
		if r.satisfies(required) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor can administer workflow configuration
func (a Actor) IsAdmin() bool {
	return slices.Contains(a.Roles, RoleAdmin)
}
