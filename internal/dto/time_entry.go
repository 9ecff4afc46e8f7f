package dto

import (
	"time"

	"github.com/noah-isme/service-order-api/internal/models"
)

// OpenTimeEntryRequest starts a work session. SectorID defaults to the actor's sector.
type OpenTimeEntryRequest struct {
	SectorID  string     `json:"sectorId" validate:"omitempty,max=64"`
	StartedAt *time.Time `json:"startedAt"`
	Notes     string     `json:"notes" validate:"max=2000"`
}

// CloseTimeEntryRequest ends a work session and optionally closes checkpoints.
type CloseTimeEntryRequest struct {
	EndedAt          *time.Time        `json:"endedAt"`
	Stages           models.StageFlags `json:"stages"`
	Rework           bool              `json:"rework"`
	ReworkCauseID    string            `json:"reworkCauseId" validate:"required_if=Rework true"`
	Notes            string            `json:"notes" validate:"max=2000"`
	ResolvesIssueIDs []string          `json:"resolvesIssueIds" validate:"omitempty,dive,required"`
}
