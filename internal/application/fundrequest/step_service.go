package fundrequest

import (
	"context"
	"fmt"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepService manages the per-organization workflow step registry
type StepService struct {
	stepRepo fundrequest.WorkflowStepRepository
}

// NewStepService creates a new StepService
func NewStepService(stepRepo fundrequest.WorkflowStepRepository) *StepService {
	return &StepService{stepRepo: stepRepo}
}

// EnsureDefaultSteps seeds the canonical steps for an organization that has none.
// Calling it again, or concurrently, never duplicates steps. It returns how many
// steps were inserted.
func (s *StepService) EnsureDefaultSteps(ctx context.Context, tenantID uuid.UUID) (int, error) {
	existing, err := s.stepRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	inserted, err := s.stepRepo.InsertIfAbsent(ctx, fundrequest.DefaultSteps(tenantID))
	if err != nil {
		return 0, fmt.Errorf("seed default workflow steps: %w", err)
	}
	if inserted > 0 {
		logger.L(ctx).Info("Seeded default workflow steps",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("inserted", inserted),
		)
	}
	return inserted, nil
}

// ListActiveSteps returns the active steps of an organization ordered by step order.
// An organization without any step is seeded with the defaults first.
func (s *StepService) ListActiveSteps(ctx context.Context, tenantID uuid.UUID) ([]fundrequest.WorkflowStep, error) {
	steps, err := s.stepRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		if _, err := s.EnsureDefaultSteps(ctx, tenantID); err != nil {
			return nil, err
		}
		if steps, err = s.stepRepo.FindByTenant(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	return fundrequest.ActiveSteps(steps), nil
}

// ListSteps returns the steps of an organization, all of them or only the active ones
func (s *StepService) ListSteps(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]StepResponse, error) {
	if activeOnly {
		steps, err := s.ListActiveSteps(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return ToStepResponses(steps), nil
	}
	steps, err := s.stepRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ToStepResponses(steps), nil
}

// CreateStep adds a step to the organization's workflow
func (s *StepService) CreateStep(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, req CreateStepRequest) (*StepResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	step, err := fundrequest.NewWorkflowStep(tenantID, req.StepName, req.StepOrder, fundrequest.Role(req.ResponsibleRole))
	if err != nil {
		return nil, err
	}
	inserted, err := s.stepRepo.InsertIfAbsent(ctx, []fundrequest.WorkflowStep{*step})
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		return nil, shared.NewValidationError(fmt.Sprintf("Another step already uses step order %d", req.StepOrder))
	}

	logger.L(ctx).Info("Workflow step created",
		zap.String("step_id", step.ID.String()),
		zap.Int("step_order", step.StepOrder),
		zap.String("responsible_role", string(step.ResponsibleRole)),
	)
	resp := ToStepResponse(step)
	return &resp, nil
}

// UpdateStep renames a step or reassigns its responsible role
func (s *StepService) UpdateStep(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, stepID uuid.UUID, req UpdateStepRequest) (*StepResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	step, err := s.stepRepo.FindByID(ctx, tenantID, stepID)
	if err != nil {
		return nil, err
	}
	if req.StepName != nil {
		if err := step.Rename(*req.StepName); err != nil {
			return nil, err
		}
	}
	if req.ResponsibleRole != nil {
		if err := step.AssignRole(fundrequest.Role(*req.ResponsibleRole)); err != nil {
			return nil, err
		}
	}
	if err := s.stepRepo.Update(ctx, step); err != nil {
		return nil, err
	}
	resp := ToStepResponse(step)
	return &resp, nil
}

// SetStepActive toggles a step. Inactive steps keep their order.
func (s *StepService) SetStepActive(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, stepID uuid.UUID, active bool) (*StepResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	step, err := s.stepRepo.FindByID(ctx, tenantID, stepID)
	if err != nil {
		return nil, err
	}
	step.SetActive(active)
	if err := s.stepRepo.Update(ctx, step); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("Workflow step toggled",
		zap.String("step_id", step.ID.String()),
		zap.Bool("is_active", active),
	)
	resp := ToStepResponse(step)
	return &resp, nil
}

func requireAdmin(actor fundrequest.Actor) error {
	if !actor.IsAdmin() {
		return shared.NewUnauthorizedError("The admin role is required to configure workflow steps")
	}
	return nil
}
