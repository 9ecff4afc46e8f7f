package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/pkg/response"
)

type workflowEngine interface {
	OpenTimeEntry(ctx context.Context, actor models.Actor, orderNumber string, req dto.OpenTimeEntryRequest) (*models.CommandResult[*models.TimeEntry], error)
	CloseTimeEntry(ctx context.Context, actor models.Actor, entryID string, req dto.CloseTimeEntryRequest) (*models.CommandResult[*models.TimeEntry], error)
	ApproveTimeEntry(ctx context.Context, actor models.Actor, entryID string) (*models.CommandResult[*models.TimeEntry], error)

	CreateSchedule(ctx context.Context, actor models.Actor, orderNumber string, req dto.CreateScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error)
	StartSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error)
	FinishSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error)
	ApproveSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error)
	ReassignSchedule(ctx context.Context, actor models.Actor, scheduleID string, req dto.ReassignScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error)
	CancelSchedule(ctx context.Context, actor models.Actor, scheduleID string, req dto.CancelScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error)

	OpenPendingIssue(ctx context.Context, actor models.Actor, orderNumber string, req dto.OpenPendingIssueRequest) (*models.CommandResult[*models.PendingIssue], error)
	ClosePendingIssue(ctx context.Context, actor models.Actor, issueID string, req dto.ClosePendingIssueRequest) (*models.CommandResult[*models.PendingIssue], error)

	SetOrderStatus(ctx context.Context, actor models.Actor, orderNumber string, req dto.SetOrderStatusRequest) (*models.CommandResult[*models.ServiceOrder], error)
	UpdateOrderCustomer(ctx context.Context, actor models.Actor, orderNumber string, req dto.UpdateOrderCustomerRequest) (*models.CommandResult[*models.ServiceOrder], error)
	ReconcileCustomerLabels(ctx context.Context, actor models.Actor, orderNumber string) (*models.CommandResult[*models.ServiceOrder], error)
}

// WorkflowHandler exposes the workflow commands. Every command responds with
// the changed entity plus the outcome of each derived change.
type WorkflowHandler struct {
	engine workflowEngine
}

// NewWorkflowHandler builds a new handler.
func NewWorkflowHandler(engine workflowEngine) *WorkflowHandler {
	return &WorkflowHandler{engine: engine}
}

// respond writes a command result or its error.
func respond[T any](c *gin.Context, status int, result *models.CommandResult[T], err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, result, nil)
}

// OpenTimeEntry godoc
// @Summary Open a time entry on an order
// @Tags TimeEntries
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param payload body dto.OpenTimeEntryRequest false "Time entry payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /orders/{number}/time-entries [post]
func (h *WorkflowHandler) OpenTimeEntry(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.OpenTimeEntryRequest
	if err := bindOptionalJSON(c, &req, "invalid time entry payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.OpenTimeEntry(c.Request.Context(), actor, c.Param("number"), req)
	respond(c, http.StatusCreated, result, err)
}

// CloseTimeEntry godoc
// @Summary Close a time entry and record completed test stages
// @Tags TimeEntries
// @Accept json
// @Produce json
// @Param id path string true "Time entry ID"
// @Param payload body dto.CloseTimeEntryRequest false "Close payload"
// @Success 200 {object} response.Envelope
// @Router /time-entries/{id}/close [post]
func (h *WorkflowHandler) CloseTimeEntry(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CloseTimeEntryRequest
	if err := bindOptionalJSON(c, &req, "invalid close payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.CloseTimeEntry(c.Request.Context(), actor, c.Param("id"), req)
	respond(c, http.StatusOK, result, err)
}

// ApproveTimeEntry godoc
// @Summary Approve a closed time entry
// @Tags TimeEntries
// @Produce json
// @Param id path string true "Time entry ID"
// @Success 200 {object} response.Envelope
// @Router /time-entries/{id}/approve [post]
func (h *WorkflowHandler) ApproveTimeEntry(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.ApproveTimeEntry(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, result, err)
}

// CreateSchedule godoc
// @Summary Plan a work window for a sector
// @Tags Schedules
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param payload body dto.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Router /orders/{number}/schedules [post]
func (h *WorkflowHandler) CreateSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateScheduleRequest
	if err := bindJSON(c, &req, "invalid schedule payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.CreateSchedule(c.Request.Context(), actor, c.Param("number"), req)
	respond(c, http.StatusCreated, result, err)
}

// StartSchedule godoc
// @Summary Start a planned schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/start [post]
func (h *WorkflowHandler) StartSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.StartSchedule(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, result, err)
}

// FinishSchedule godoc
// @Summary Finish an in-progress schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/finish [post]
func (h *WorkflowHandler) FinishSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.FinishSchedule(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, result, err)
}

// ApproveSchedule godoc
// @Summary Approve a completed schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/approve [post]
func (h *WorkflowHandler) ApproveSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.ApproveSchedule(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, result, err)
}

// ReassignSchedule godoc
// @Summary Reassign a schedule entry to another user, sector or window
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.ReassignScheduleRequest true "Reassignment payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/reassign [post]
func (h *WorkflowHandler) ReassignSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReassignScheduleRequest
	if err := bindJSON(c, &req, "invalid reassignment payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.ReassignSchedule(c.Request.Context(), actor, c.Param("id"), req)
	respond(c, http.StatusOK, result, err)
}

// CancelSchedule godoc
// @Summary Cancel a schedule entry
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.CancelScheduleRequest true "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/cancel [post]
func (h *WorkflowHandler) CancelSchedule(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CancelScheduleRequest
	if err := bindJSON(c, &req, "invalid cancel payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.CancelSchedule(c.Request.Context(), actor, c.Param("id"), req)
	respond(c, http.StatusOK, result, err)
}

// OpenPendingIssue godoc
// @Summary Report a pending issue and block the order
// @Tags PendingIssues
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param payload body dto.OpenPendingIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /orders/{number}/pending-issues [post]
func (h *WorkflowHandler) OpenPendingIssue(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.OpenPendingIssueRequest
	if err := bindJSON(c, &req, "invalid pending issue payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.OpenPendingIssue(c.Request.Context(), actor, c.Param("number"), req)
	respond(c, http.StatusCreated, result, err)
}

// ClosePendingIssue godoc
// @Summary Close a pending issue
// @Tags PendingIssues
// @Accept json
// @Produce json
// @Param id path string true "Pending issue ID"
// @Param payload body dto.ClosePendingIssueRequest false "Close payload"
// @Success 200 {object} response.Envelope
// @Router /pending-issues/{id}/close [post]
func (h *WorkflowHandler) ClosePendingIssue(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ClosePendingIssueRequest
	if err := bindOptionalJSON(c, &req, "invalid close payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.ClosePendingIssue(c.Request.Context(), actor, c.Param("id"), req)
	respond(c, http.StatusOK, result, err)
}

// SetOrderStatus godoc
// @Summary Override an order status (admin)
// @Tags Orders
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param payload body dto.SetOrderStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /orders/{number}/status [post]
func (h *WorkflowHandler) SetOrderStatus(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetOrderStatusRequest
	if err := bindJSON(c, &req, "invalid status payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.SetOrderStatus(c.Request.Context(), actor, c.Param("number"), req)
	respond(c, http.StatusOK, result, err)
}

// UpdateOrderCustomer godoc
// @Summary Change the customer of an order (admin)
// @Tags Orders
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param payload body dto.UpdateOrderCustomerRequest true "Customer payload"
// @Success 200 {object} response.Envelope
// @Router /orders/{number}/customer [put]
func (h *WorkflowHandler) UpdateOrderCustomer(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateOrderCustomerRequest
	if err := bindJSON(c, &req, "invalid customer payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.UpdateOrderCustomer(c.Request.Context(), actor, c.Param("number"), req)
	respond(c, http.StatusOK, result, err)
}

// ReconcileLabels godoc
// @Summary Re-copy the order customer onto its pending issues (admin)
// @Tags Orders
// @Produce json
// @Param number path string true "Order number"
// @Success 200 {object} response.Envelope
// @Router /orders/{number}/reconcile-labels [post]
func (h *WorkflowHandler) ReconcileLabels(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.engine.ReconcileCustomerLabels(c.Request.Context(), actor, c.Param("number"))
	respond(c, http.StatusOK, result, err)
}
