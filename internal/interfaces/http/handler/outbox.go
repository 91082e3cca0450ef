package handler

import (
	"strconv"

	"github.com/erp/fundflow/internal/application/event"
	"github.com/gin-gonic/gin"
)

// OutboxHandler handles outbox management HTTP requests
type OutboxHandler struct {
	BaseHandler
	outboxService *event.OutboxService
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outboxService *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{
		outboxService: outboxService,
	}
}

// RetryAllResponse represents the response for retry all operation
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// requireAdmin answers 403 unless the caller holds the admin role
func (h *OutboxHandler) requireAdmin(c *gin.Context) bool {
	_, actor, ok := h.principal(c)
	if !ok {
		return false
	}
	if !actor.IsAdmin() {
		h.Forbidden(c, "The admin role is required to manage the outbox")
		return false
	}
	return true
}

// GetDeadLetterEntries godoc
// @ID           getOutboxDeadLetterEntries
// @Summary      List dead letter entries
// @Description  Get the most recent dead letter queue entries
// @Tags         outbox
// @Produce      json
// @Param        limit query int false "Maximum entries" default(100) maximum(100)
// @Success      200 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /system/outbox/dead [get]
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.BadRequest(c, "Invalid limit")
			return
		}
		limit = v
	}

	entries, err := h.outboxService.GetDeadLetterEntries(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// GetEntry godoc
// @ID           getOutboxEntry
// @Summary      Get an outbox entry by ID
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox Entry ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /system/outbox/{id} [get]
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := h.pathID(c, "id", "entry")
	if !ok {
		return
	}

	entry, err := h.outboxService.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDeadEntry godoc
// @ID           retryDeadEntryOutbox
// @Summary      Retry a dead letter entry
// @Description  Reset a dead letter entry for retry processing
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox Entry ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /system/outbox/{id}/retry [post]
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := h.pathID(c, "id", "entry")
	if !ok {
		return
	}

	entry, err := h.outboxService.RetryDeadEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAllDeadEntries godoc
// @ID           retryAllDeadEntriesOutbox
// @Summary      Retry all dead letter entries
// @Tags         outbox
// @Produce      json
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /system/outbox/dead/retry-all [post]
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	count, err := h.outboxService.RetryAllDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Count: count})
}

// GetStats godoc
// @ID           getOutboxStats
// @Summary      Get outbox statistics
// @Description  Get statistics about outbox entries by status
// @Tags         outbox
// @Produce      json
// @Success      200 {object} dto.Response
// @Security     BearerAuth
// @Router       /system/outbox/stats [get]
func (h *OutboxHandler) GetStats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	stats, err := h.outboxService.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
