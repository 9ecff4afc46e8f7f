package models

import "time"

// ScheduleStatus captures the lifecycle of a planned work window.
type ScheduleStatus string

const (
	ScheduleStatusPlanned    ScheduleStatus = "planned"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusApproved   ScheduleStatus = "approved"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// Mutable reports whether the entry may still be started, reassigned or cancelled.
func (s ScheduleStatus) Mutable() bool {
	switch s {
	case ScheduleStatusPlanned, ScheduleStatusInProgress:
		return true
	case ScheduleStatusCompleted, ScheduleStatusApproved, ScheduleStatusCancelled:
		return false
	}
	return false
}

// ApprovalTrigger records what approved a schedule entry.
type ApprovalTrigger string

const (
	ApprovalTriggerManual            ApprovalTrigger = "manual"
	ApprovalTriggerTimeEntryApproval ApprovalTrigger = "time_entry_approval"
)

// SystemActorID stamps approvals performed by the engine itself.
const SystemActorID = "system"

// ScheduleEntry is a planned work window for a sector on an order.
type ScheduleEntry struct {
	ID                string           `db:"id" json:"id"`
	OrderNumber       string           `db:"order_number" json:"orderNumber"`
	SectorID          string           `db:"sector_id" json:"sectorId"`
	DepartmentID      string           `db:"department_id" json:"departmentId"`
	ResponsibleUserID string           `db:"responsible_user_id" json:"responsibleUserId"`
	PlannedStart      time.Time        `db:"planned_start" json:"plannedStart"`
	PlannedEnd        time.Time        `db:"planned_end" json:"plannedEnd"`
	Status            ScheduleStatus   `db:"status" json:"status"`
	StartedAt         *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt       *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	ElapsedMinutes    *int             `db:"elapsed_minutes" json:"elapsedMinutes,omitempty"`
	ApprovedBy        *string          `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time       `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovalTrigger   *ApprovalTrigger `db:"approval_trigger" json:"approvalTrigger,omitempty"`
	CancelReason      *string          `db:"cancel_reason" json:"cancelReason,omitempty"`
	Notes             string           `db:"notes" json:"notes,omitempty"`
	CreatedBy         string           `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

// Complete moves an in-progress entry to completed and computes elapsed minutes.
func (s *ScheduleEntry) Complete(at time.Time) {
	ts := at
	s.Status = ScheduleStatusCompleted
	s.CompletedAt = &ts
	if s.StartedAt != nil {
		minutes := int(at.Sub(*s.StartedAt).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		s.ElapsedMinutes = &minutes
	}
	s.UpdatedAt = at
}

// Approve stamps approval metadata.
func (s *ScheduleEntry) Approve(by string, trigger ApprovalTrigger, at time.Time) {
	ts := at
	approver := by
	t := trigger
	s.Status = ScheduleStatusApproved
	s.ApprovedBy = &approver
	s.ApprovedAt = &ts
	s.ApprovalTrigger = &t
	s.UpdatedAt = at
}

// ScheduleHistory keeps the previous assignment of a reassigned entry.
type ScheduleHistory struct {
	ID               string    `db:"id" json:"id"`
	ScheduleID       string    `db:"schedule_id" json:"scheduleId"`
	ChangedBy        string    `db:"changed_by" json:"changedBy"`
	PreviousUserID   string    `db:"previous_user_id" json:"previousUserId"`
	PreviousSectorID string    `db:"previous_sector_id" json:"previousSectorId"`
	PreviousStart    time.Time `db:"previous_start" json:"previousStart"`
	PreviousEnd      time.Time `db:"previous_end" json:"previousEnd"`
	NewUserID        string    `db:"new_user_id" json:"newUserId"`
	NewSectorID      string    `db:"new_sector_id" json:"newSectorId"`
	NewStart         time.Time `db:"new_start" json:"newStart"`
	NewEnd           time.Time `db:"new_end" json:"newEnd"`
	ChangedAt        time.Time `db:"changed_at" json:"changedAt"`
}
