package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/service-order-api/internal/middleware"
	"github.com/noah-isme/service-order-api/internal/models"
)

// RegisterRoutes mounts the order and workflow endpoints on group. The group
// must already authenticate requests.
func RegisterRoutes(group *gin.RouterGroup, workflow *WorkflowHandler, orders *OrderHandler) {
	anyRole := middleware.RequireRoles(models.RoleWorker, models.RoleSupervisor, models.RoleAdmin)
	leads := middleware.RequireRoles(models.RoleSupervisor, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	group.GET("/orders", anyRole, orders.List)
	group.GET("/orders/:number", anyRole, orders.Get)
	group.POST("/orders/:number/time-entries", anyRole, workflow.OpenTimeEntry)
	group.POST("/orders/:number/schedules", leads, workflow.CreateSchedule)
	group.POST("/orders/:number/pending-issues", anyRole, workflow.OpenPendingIssue)
	group.POST("/orders/:number/status", admin, workflow.SetOrderStatus)
	group.PUT("/orders/:number/customer", admin, workflow.UpdateOrderCustomer)
	group.POST("/orders/:number/reconcile-labels", admin, workflow.ReconcileLabels)

	group.POST("/time-entries/:id/close", anyRole, workflow.CloseTimeEntry)
	group.POST("/time-entries/:id/approve", leads, workflow.ApproveTimeEntry)

	group.POST("/schedules/:id/start", anyRole, workflow.StartSchedule)
	group.POST("/schedules/:id/finish", anyRole, workflow.FinishSchedule)
	group.POST("/schedules/:id/approve", leads, workflow.ApproveSchedule)
	group.POST("/schedules/:id/reassign", leads, workflow.ReassignSchedule)
	group.POST("/schedules/:id/cancel", leads, workflow.CancelSchedule)

	group.POST("/pending-issues/:id/close", anyRole, workflow.ClosePendingIssue)
}
