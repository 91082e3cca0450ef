package fundrequest

import (
	"slices"
	"strings"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
)

// WorkflowStep is one ordered, role-owned stage of an organization's approval sequence.
// Inactive steps keep their order so toggling never renumbers the sequence.
type WorkflowStep struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	StepName        string    `json:"step_name"`
	StepOrder       int       `json:"step_order"`
	ResponsibleRole Role      `json:"responsible_role"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewWorkflowStep creates an active workflow step
func NewWorkflowStep(tenantID uuid.UUID, name string, order int, role Role) (*WorkflowStep, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("Step name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewValidationError("Step name cannot exceed 100 characters")
	}
	if order < 1 {
		return nil, shared.NewValidationError("Step order must be positive")
	}
	if !role.IsValid() {
		return nil, shared.NewValidationError("Responsible role is not valid")
	}
	now := time.Now()
	return &WorkflowStep{
		ID:              uuid.New(),
		TenantID:        tenantID,
		StepName:        name,
		StepOrder:       order,
		ResponsibleRole: role,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Rename changes the display name of the step
func (s *WorkflowStep) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return shared.NewValidationError("Step name must be between 1 and 100 characters")
	}
	s.StepName = name
	s.UpdatedAt = time.Now()
	return nil
}

// AssignRole changes the responsible role of the step
func (s *WorkflowStep) AssignRole(role Role) error {
	if !role.IsValid() {
		return shared.NewValidationError("Responsible role is not valid")
	}
	s.ResponsibleRole = role
	s.UpdatedAt = time.Now()
	return nil
}

// SetActive toggles whether the step participates in the workflow
func (s *WorkflowStep) SetActive(active bool) {
	s.IsActive = active
	s.UpdatedAt = time.Now()
}

// defaultStepDefs is the canonical step set seeded for a new organization
var defaultStepDefs = []struct {
	name  string
	order int
	role  Role
}{
	{"Demande", 1, RoleRequester},
	{"Revue comptable", 2, RoleAccountant},
	{"Validation", 3, RoleManager},
	{"Paiement", 4, RoleCashier},
}

// DefaultSteps returns the canonical requester/accountant/manager/cashier steps for a tenant
func DefaultSteps(tenantID uuid.UUID) []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(defaultStepDefs))
	for _, def := range defaultStepDefs {
		step, _ := NewWorkflowStep(tenantID, def.name, def.order, def.role)
		steps = append(steps, *step)
	}
	return steps
}

// ActiveSteps returns the active steps sorted by step order, without mutating the input
func ActiveSteps(steps []WorkflowStep) []WorkflowStep {
	active := make([]WorkflowStep, 0, len(steps))
	for _, s := range steps {
		if s.IsActive {
			active = append(active, s)
		}
	}
	slices.SortStableFunc(active, func(a, b WorkflowStep) int {
		return a.StepOrder - b.StepOrder
	})
	return active
}

// stepAt returns the active step whose order equals ordinal
func stepAt(steps []WorkflowStep, ordinal int) (WorkflowStep, bool) {
	for _, s := range steps {
		if s.IsActive && s.StepOrder == ordinal {
			return s, true
		}
	}
	return WorkflowStep{}, false
}
