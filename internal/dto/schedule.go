package dto

import "time"

// CreateScheduleRequest plans a work window for a sector.
type CreateScheduleRequest struct {
	SectorID          string    `json:"sectorId" validate:"required"`
	ResponsibleUserID string    `json:"responsibleUserId" validate:"required"`
	PlannedStart      time.Time `json:"plannedStart" validate:"required"`
	PlannedEnd        time.Time `json:"plannedEnd" validate:"required,gtfield=PlannedStart"`
	Notes             string    `json:"notes" validate:"max=2000"`
}

// ReassignScheduleRequest replaces the assignment of a schedule entry.
// Empty fields keep their current value.
type ReassignScheduleRequest struct {
	ResponsibleUserID string     `json:"responsibleUserId" validate:"required"`
	SectorID          string     `json:"sectorId"`
	PlannedStart      *time.Time `json:"plannedStart"`
	PlannedEnd        *time.Time `json:"plannedEnd"`
}

// CancelScheduleRequest cancels an entry that has not completed.
type CancelScheduleRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
