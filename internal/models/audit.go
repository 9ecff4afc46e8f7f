package models

import "time"

// Audit actions written by the workflow engine, one per successful command.
const (
	AuditActionTimeEntryOpen    = "TIME_ENTRY_OPEN"
	AuditActionTimeEntryClose   = "TIME_ENTRY_CLOSE"
	AuditActionTimeEntryApprove = "TIME_ENTRY_APPROVE"
	AuditActionScheduleCreate   = "SCHEDULE_CREATE"
	AuditActionScheduleStart    = "SCHEDULE_START"
	AuditActionScheduleFinish   = "SCHEDULE_FINISH"
	AuditActionScheduleApprove  = "SCHEDULE_APPROVE"
	AuditActionScheduleReassign = "SCHEDULE_REASSIGN"
	AuditActionScheduleCancel   = "SCHEDULE_CANCEL"
	AuditActionIssueOpen        = "PENDING_ISSUE_OPEN"
	AuditActionIssueClose       = "PENDING_ISSUE_CLOSE"
	AuditActionOrderStatus      = "ORDER_STATUS_OVERRIDE"
	AuditActionOrderCustomer    = "ORDER_CUSTOMER_UPDATE"
	AuditActionLabelsReconcile  = "PENDING_ISSUE_LABELS_RECONCILE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"userId,omitempty"`
	Action      string    `db:"action" json:"action"`
	Resource    string    `db:"resource" json:"resource"`
	ResourceID  *string   `db:"resource_id" json:"resourceId,omitempty"`
	OrderNumber string    `db:"order_number" json:"orderNumber"`
	OldValues   []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues   []byte    `db:"new_values" json:"newValues,omitempty"`
	RequestID   string    `db:"request_id" json:"requestId,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
