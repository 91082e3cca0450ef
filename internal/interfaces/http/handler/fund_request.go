package handler

import (
	"context"

	"github.com/erp/fundflow/internal/application/fundrequest"
	domain "github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// paymentProofField is the multipart field carrying the payment proof file
const paymentProofField = "file"

// FundRequestHandler handles fund request HTTP requests
type FundRequestHandler struct {
	BaseHandler
	service *fundrequest.FundRequestService
}

// NewFundRequestHandler creates a new FundRequestHandler
func NewFundRequestHandler(service *fundrequest.FundRequestService) *FundRequestHandler {
	return &FundRequestHandler{service: service}
}

// Create godoc
// @ID           createFundRequest
// @Summary      Create a fund request
// @Description  Create a fund request in draft, or directly submitted when submit is true
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        request body fundrequest.CreateFundRequestRequest true "Fund request"
// @Success      201 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests [post]
func (h *FundRequestHandler) Create(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	var req fundrequest.CreateFundRequestRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Language = middleware.GetLanguage(c)

	resp, err := h.service.Create(c.Request.Context(), tenantID, actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List godoc
// @ID           listFundRequests
// @Summary      List fund requests
// @Tags         fund-requests
// @Produce      json
// @Param        status       query string false "Status filter"
// @Param        requester_id query string false "Requester filter" format(uuid)
// @Param        from         query string false "Request date lower bound" format(date)
// @Param        to           query string false "Request date upper bound" format(date)
// @Param        search       query string false "Beneficiary or description search"
// @Param        order_by     query string false "Sort column" Enums(request_number, request_date, amount, status, created_at, updated_at)
// @Param        order_dir    query string false "Sort direction" Enums(asc, desc)
// @Param        page         query int    false "Page number" default(1)
// @Param        page_size    query int    false "Items per page" default(20) maximum(100)
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests [get]
func (h *FundRequestHandler) List(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	var filter fundrequest.FundRequestListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	result, err := h.service.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Get godoc
// @ID           getFundRequest
// @Summary      Get a fund request
// @Tags         fund-requests
// @Produce      json
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id} [get]
func (h *FundRequestHandler) Get(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}

	resp, err := h.service.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Transition godoc
// @ID           transitionFundRequest
// @Summary      Change the status of a fund request
// @Description  Moves the request to target_status if the transition is allowed and the caller holds the responsible role
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        id      path string                         true "Fund request ID" format(uuid)
// @Param        request body fundrequest.TransitionRequest true "Transition"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/transitions [post]
func (h *FundRequestHandler) Transition(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}
	var req fundrequest.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Language = middleware.GetLanguage(c)

	resp, err := h.service.Transition(c.Request.Context(), tenantID, actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

type actionFunc func(
	ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, req fundrequest.ActionRequest,
) (*fundrequest.FundRequestResponse, error)

// action serves the shortcut endpoints that move a request one step along the workflow
func (h *FundRequestHandler) action(c *gin.Context, fn actionFunc) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}
	var req fundrequest.ActionRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	req.Language = middleware.GetLanguage(c)

	resp, err := fn(c.Request.Context(), tenantID, actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Submit godoc
// @ID           submitFundRequest
// @Summary      Submit a draft fund request
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        id      path string                     true  "Fund request ID" format(uuid)
// @Param        request body fundrequest.ActionRequest false "Details"
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/submit [post]
func (h *FundRequestHandler) Submit(c *gin.Context) {
	h.action(c, h.service.Submit)
}

// Review godoc
// @ID           reviewFundRequest
// @Summary      Take a submitted fund request into accounting review
// @Tags         fund-requests
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/review [post]
func (h *FundRequestHandler) Review(c *gin.Context) {
	h.action(c, h.service.Review)
}

// Validate godoc
// @ID           validateFundRequest
// @Summary      Validate a reviewed fund request
// @Tags         fund-requests
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/validate [post]
func (h *FundRequestHandler) Validate(c *gin.Context) {
	h.action(c, h.service.Validate)
}

// Pay godoc
// @ID           payFundRequest
// @Summary      Mark a validated fund request as paid
// @Tags         fund-requests
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/pay [post]
func (h *FundRequestHandler) Pay(c *gin.Context) {
	h.action(c, h.service.Pay)
}

// Resubmit godoc
// @ID           resubmitFundRequest
// @Summary      Resubmit a rejected fund request
// @Tags         fund-requests
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/resubmit [post]
func (h *FundRequestHandler) Resubmit(c *gin.Context) {
	h.action(c, h.service.Resubmit)
}

// Reject godoc
// @ID           rejectFundRequest
// @Summary      Reject a fund request
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        id      path string                     true "Fund request ID" format(uuid)
// @Param        request body fundrequest.RejectRequest true "Rejection"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/reject [post]
func (h *FundRequestHandler) Reject(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}
	var req fundrequest.RejectRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Language = middleware.GetLanguage(c)

	resp, err := h.service.Reject(c.Request.Context(), tenantID, actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// History godoc
// @ID           getFundRequestHistory
// @Summary      Get the status history of a fund request
// @Tags         fund-requests
// @Produce      json
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/history [get]
func (h *FundRequestHandler) History(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}

	entries, err := h.service.History(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// Progress godoc
// @ID           getFundRequestProgress
// @Summary      Get the workflow progress of a fund request
// @Tags         fund-requests
// @Produce      json
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      500 {object} dto.Response "Workflow misconfigured"
// @Security     BearerAuth
// @Router       /fund-requests/{id}/progress [get]
func (h *FundRequestHandler) Progress(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}

	progress, err := h.service.Progress(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, progress)
}

// UploadPaymentProof godoc
// @ID           uploadFundRequestPaymentProof
// @Summary      Attach the payment proof of a paid fund request
// @Tags         fund-requests
// @Accept       multipart/form-data
// @Produce      json
// @Param        id   path     string true "Fund request ID" format(uuid)
// @Param        file formData file   true "PDF, PNG or JPEG document"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response
// @Failure      413 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/payment-proof [post]
func (h *FundRequestHandler) UploadPaymentProof(c *gin.Context) {
	tenantID, actor, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile(paymentProofField)
	if err != nil {
		h.BadRequest(c, "A payment proof file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.BadRequest(c, "Payment proof file could not be read")
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	resp, err := h.service.AttachPaymentProof(c.Request.Context(), tenantID, actor, id, contentType, file, fileHeader.Size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PaymentProofURL godoc
// @ID           getFundRequestPaymentProof
// @Summary      Get a temporary download link for the payment proof
// @Tags         fund-requests
// @Produce      json
// @Param        id path string true "Fund request ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /fund-requests/{id}/payment-proof [get]
func (h *FundRequestHandler) PaymentProofURL(c *gin.Context) {
	tenantID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id", "fund request")
	if !ok {
		return
	}

	link, err := h.service.PaymentProofURL(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}
