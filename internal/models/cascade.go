package models

// EntityType names the entity a cascade outcome refers to.
type EntityType string

const (
	EntityServiceOrder EntityType = "service_order"
	EntityTimeEntry    EntityType = "time_entry"
	EntitySchedule     EntityType = "schedule_entry"
	EntityPendingIssue EntityType = "pending_issue"
	EntityNotification EntityType = "notification"
)

// CascadeStatus describes how a derived step ended.
type CascadeStatus string

const (
	CascadeApplied CascadeStatus = "applied"
	CascadeSkipped CascadeStatus = "skipped"
	CascadeFailed  CascadeStatus = "failed"
)

// Cascade step names, stable for metrics and clients.
const (
	StepScheduleAutoStart    = "schedule_auto_start"
	StepScheduleAutoComplete = "schedule_auto_complete"
	StepScheduleAutoApprove  = "schedule_auto_approve"
	StepOrderStart           = "order_start"
	StepOrderCheckpoint      = "order_checkpoint"
	StepOrderReevaluate      = "order_reevaluate"
	StepOrderBlock           = "order_block"
	StepIssueAutoClose       = "pending_issue_auto_close"
	StepLabelReconcile       = "pending_issue_label_reconcile"
	StepNotify               = "notify"
)

// CascadeOutcome reports one derived state change of a command.
type CascadeOutcome struct {
	Step       string        `json:"step"`
	EntityType EntityType    `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Status     CascadeStatus `json:"status"`
	NewState   string        `json:"newState,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// CommandResult carries the primary entity plus every cascade outcome.
type CommandResult[T any] struct {
	Entity   T                `json:"entity"`
	Cascades []CascadeOutcome `json:"cascades"`
	Warnings []string         `json:"warnings,omitempty"`
}
