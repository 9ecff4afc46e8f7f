package models

import "time"

// StageFlags marks which checkpoints a closing time entry completes.
type StageFlags struct {
	Initial bool `db:"stage_initial" json:"initial"`
	Partial bool `db:"stage_partial" json:"partial"`
	Final   bool `db:"stage_final" json:"final"`
}

// Checkpoints returns the flagged stages in canonical order.
func (f StageFlags) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, 0, 3)
	if f.Initial {
		out = append(out, CheckpointInitial)
	}
	if f.Partial {
		out = append(out, CheckpointPartial)
	}
	if f.Final {
		out = append(out, CheckpointFinal)
	}
	return out
}

// TimeEntry is one recorded work session against an order.
type TimeEntry struct {
	ID            string     `db:"id" json:"id"`
	OrderNumber   string     `db:"order_number" json:"orderNumber"`
	UserID        string     `db:"user_id" json:"userId"`
	SectorID      string     `db:"sector_id" json:"sectorId"`
	StartedAt     time.Time  `db:"started_at" json:"startedAt"`
	EndedAt       *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	Approved      bool       `db:"approved" json:"approved"`
	ApprovedBy    *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	Rework        bool       `db:"rework" json:"rework"`
	ReworkCauseID *string    `db:"rework_cause_id" json:"reworkCauseId,omitempty"`
	Notes         string     `db:"notes" json:"notes,omitempty"`
	StageFlags
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Open reports whether the session has not been closed yet.
func (e *TimeEntry) Open() bool {
	return e.EndedAt == nil
}
