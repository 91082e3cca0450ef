package handler

import (
	"strconv"

	"github.com/erp/fundflow/internal/application/fundrequest"
	"github.com/gin-gonic/gin"
)

// WorkflowStepHandler handles workflow step configuration HTTP requests
type WorkflowStepHandler struct {
	BaseHandler
	service *fundrequest.StepService
}

// NewWorkflowStepHandler creates a new WorkflowStepHandler
func NewWorkflowStepHandler(service *fundrequest.StepService) *WorkflowStepHandler {
	return &WorkflowStepHandler{service: service}
}

// SeededStepsResponse reports how many default steps were inserted
type SeededStepsResponse struct {
	Inserted int `json:"inserted"`
}

// List godoc
// @ID           listWorkflowSteps
// @Summary      List the workflow steps of the organization
// @Tags         workflow-steps
// @Produce      json
// @Param        active query bool false "Only active steps"
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /workflow-steps [get]
func (h *WorkflowStepHandler) List(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "Invalid active filter")
			return
		}
		activeOnly = v
	}

	steps, err := h.service.ListSteps(c.Request.Context(), tenantID, activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, steps)
}

// SeedDefaults godoc
// @ID           seedWorkflowSteps
// @Summary      Install the default workflow steps
// @Description  Inserts the default steps when the organization has none; existing configuration is left untouched
// @Tags         workflow-steps
// @Produce      json
// @Success      200 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /workflow-steps/defaults [post]
func (h *WorkflowStepHandler) SeedDefaults(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		h.Forbidden(c, "The admin role is required to configure workflow steps")
		return
	}

	inserted, err := h.service.EnsureDefaultSteps(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SeededStepsResponse{Inserted: inserted})
}

// Create godoc
// @ID           createWorkflowStep
// @Summary      Add a workflow step
// @Tags         workflow-steps
// @Accept       json
// @Produce      json
// @Param        request body fundrequest.CreateStepRequest true "Step"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /workflow-steps [post]
func (h *WorkflowStepHandler) Create(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	var req fundrequest.CreateStepRequest
	if !h.BindJSON(c, &req) {
		return
	}

	step, err := h.service.CreateStep(c.Request.Context(), tenantID, actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, step)
}

// Update godoc
// @ID           updateWorkflowStep
// @Summary      Rename a workflow step or change its responsible role
// @Tags         workflow-steps
// @Accept       json
// @Produce      json
// @Param        id      path string                        true "Step ID" format(uuid)
// @Param        request body fundrequest.UpdateStepRequest true "Changes"
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /workflow-steps/{id} [put]
func (h *WorkflowStepHandler) Update(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "step")
	if !ok {
		return
	}
	var req fundrequest.UpdateStepRequest
	if !h.BindJSON(c, &req) {
		return
	}

	step, err := h.service.UpdateStep(c.Request.Context(), tenantID, actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, step)
}

// SetActive godoc
// @ID           setWorkflowStepActive
// @Summary      Enable or disable a workflow step
// @Tags         workflow-steps
// @Accept       json
// @Produce      json
// @Param        id      path string                           true "Step ID" format(uuid)
// @Param        request body fundrequest.SetStepActiveRequest true "State"
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /workflow-steps/{id}/active [patch]
func (h *WorkflowStepHandler) SetActive(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "step")
	if !ok {
		return
	}
	var req fundrequest.SetStepActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	step, err := h.service.SetStepActive(c.Request.Context(), tenantID, actor, id, *req.IsActive)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, step)
}
