package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

// OpenTimeEntry starts a work session for the actor. At most one open entry
// may exist per user and per sector on an order.
func (e *Engine) OpenTimeEntry(ctx context.Context, actor models.Actor, orderNumber string, req dto.OpenTimeEntryRequest) (*models.CommandResult[*models.TimeEntry], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var entry *models.TimeEntry
	cmd, err := e.execute(ctx, "open_time_entry", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		sectorID := strings.TrimSpace(req.SectorID)
		if sectorID == "" {
			sectorID = actor.SectorID
		}
		if sectorID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "sector is required")
		}
		if _, ok := cmd.catalog.Sector(sectorID); !ok {
			return appErrors.Clonef(appErrors.ErrValidation, "unknown sector %s", sectorID)
		}
		if sectorID != actor.SectorID && !actor.Elevated() {
			return appErrors.Clone(appErrors.ErrForbidden, "cannot log time for another sector")
		}

		started := cmd.now
		if req.StartedAt != nil {
			started = req.StartedAt.UTC()
		}
		if started.After(cmd.now) {
			return appErrors.Clone(appErrors.ErrValidation, "start time is in the future")
		}

		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			order, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			if order.Status.Terminal() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "order %s is %s", orderNumber, order.Status)
			}
			open, err := s.TimeEntries.ListOpenByOrder(ctx, orderNumber)
			if err != nil {
				return err
			}
			for _, existing := range open {
				if existing.UserID == actor.UserID {
					return appErrors.Clonef(appErrors.ErrConflict, "user %s already has open time entry %s on order %s", actor.UserID, existing.ID, orderNumber)
				}
				if existing.SectorID == sectorID {
					return appErrors.Clonef(appErrors.ErrConflict, "sector %s already has open time entry %s on order %s", sectorID, existing.ID, orderNumber)
				}
			}

			entry = &models.TimeEntry{
				OrderNumber: orderNumber,
				UserID:      actor.UserID,
				SectorID:    sectorID,
				StartedAt:   started,
				Notes:       req.Notes,
				CreatedAt:   cmd.now,
				UpdatedAt:   cmd.now,
			}
			if err := s.TimeEntries.Create(ctx, entry); err != nil {
				return err
			}
			return e.audit(ctx, s, cmd, models.AuditActionTimeEntryOpen, string(models.EntityTimeEntry), entry.ID, nil, entry)
		})
		if err != nil {
			return err
		}

		e.cascade(ctx, cmd, placeholder(models.StepScheduleAutoStart, models.EntitySchedule, ""), e.scheduleAutoStartStep(cmd, sectorID))
		e.cascade(ctx, cmd, placeholder(models.StepOrderStart, models.EntityServiceOrder, orderNumber), e.orderStartStep(cmd))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

// scheduleAutoStartStep starts the earliest planned schedule of the sector,
// unless one is already in progress.
func (e *Engine) scheduleAutoStartStep(cmd *command, sectorID string) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		outcome := models.CascadeOutcome{Step: models.StepScheduleAutoStart, EntityType: models.EntitySchedule}
		entries, err := s.Schedules.ListByOrderSector(ctx, cmd.order, sectorID, models.ScheduleStatusPlanned, models.ScheduleStatusInProgress)
		if err != nil {
			return nil, err
		}
		var candidate *models.ScheduleEntry
		for i := range entries {
			if entries[i].Status == models.ScheduleStatusInProgress {
				outcome.EntityID = entries[i].ID
				outcome.Status = models.CascadeSkipped
				outcome.Reason = "schedule already in progress"
				return []models.CascadeOutcome{outcome}, nil
			}
			if candidate == nil {
				candidate = &entries[i]
			}
		}
		if candidate == nil {
			outcome.Status = models.CascadeSkipped
			outcome.Reason = fmt.Sprintf("no planned schedule for sector %s", sectorID)
			return []models.CascadeOutcome{outcome}, nil
		}

		at := cmd.now
		candidate.Status = models.ScheduleStatusInProgress
		candidate.StartedAt = &at
		candidate.UpdatedAt = cmd.now
		if err := s.Schedules.Update(ctx, candidate); err != nil {
			return nil, err
		}
		outcome.EntityID = candidate.ID
		outcome.Status = models.CascadeApplied
		outcome.NewState = string(candidate.Status)
		return []models.CascadeOutcome{outcome}, nil
	}
}

// CloseTimeEntry ends a work session. Stage flags are the only way order
// checkpoints become true; they are written together with the close.
func (e *Engine) CloseTimeEntry(ctx context.Context, actor models.Actor, entryID string, req dto.CloseTimeEntryRequest) (*models.CommandResult[*models.TimeEntry], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	current, err := e.uow.Stores().TimeEntries.Get(ctx, entryID)
	if err != nil {
		return nil, notFound(err, "time entry %s not found", entryID)
	}

	var entry *models.TimeEntry
	cmd, err := e.execute(ctx, "close_time_entry", current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		var checkpoints []models.CascadeOutcome
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.TimeEntries.Get(ctx, entryID)
			if err != nil {
				return notFound(err, "time entry %s not found", entryID)
			}
			if loaded.UserID != actor.UserID && !actor.CanSupervise(loaded.SectorID) {
				return appErrors.Clone(appErrors.ErrForbidden, "only the owner or a supervisor of the sector may close this entry")
			}
			if !loaded.Open() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "time entry %s is already closed", entryID)
			}

			ended := cmd.now
			if req.EndedAt != nil {
				ended = req.EndedAt.UTC()
			}
			if ended.Before(loaded.StartedAt) {
				return appErrors.Clone(appErrors.ErrValidation, "end time precedes start time")
			}
			if ended.After(cmd.now) {
				return appErrors.Clone(appErrors.ErrValidation, "end time is in the future")
			}
			if req.Rework {
				if _, ok := cmd.catalog.ReworkCause(req.ReworkCauseID); !ok {
					return appErrors.Clonef(appErrors.ErrValidation, "unknown rework cause %s", req.ReworkCauseID)
				}
			}
			for _, issueID := range req.ResolvesIssueIDs {
				issue, err := s.Issues.Get(ctx, issueID)
				if err != nil {
					return notFound(err, "pending issue %s not found", issueID)
				}
				if issue.OrderNumber != loaded.OrderNumber {
					return appErrors.Clonef(appErrors.ErrNotFound, "pending issue %s not found on order %s", issueID, loaded.OrderNumber)
				}
			}
			order, err := s.Orders.GetForUpdate(ctx, loaded.OrderNumber)
			if err != nil {
				return notFound(err, "order %s not found", loaded.OrderNumber)
			}

			before := *loaded
			loaded.EndedAt = &ended
			loaded.StageFlags = req.Stages
			loaded.Rework = req.Rework
			if req.Rework {
				cause := req.ReworkCauseID
				loaded.ReworkCauseID = &cause
			}
			if req.Notes != "" {
				loaded.Notes = req.Notes
			}
			if err := s.TimeEntries.Update(ctx, loaded); err != nil {
				return err
			}

			changed := false
			for _, cp := range req.Stages.Checkpoints() {
				outcome := models.CascadeOutcome{Step: models.StepOrderCheckpoint, EntityType: models.EntityServiceOrder, EntityID: order.Number}
				switch {
				case order.Status.Terminal():
					outcome.Status = models.CascadeSkipped
					outcome.Reason = fmt.Sprintf("order is %s", order.Status)
				case order.MarkCheckpoint(cp, actor.UserID, ended):
					changed = true
					outcome.Status = models.CascadeApplied
					outcome.NewState = fmt.Sprintf("%s_tests_done", cp)
				default:
					outcome.Status = models.CascadeSkipped
					outcome.Reason = fmt.Sprintf("%s_tests_done already set", cp)
				}
				checkpoints = append(checkpoints, outcome)
			}
			if changed {
				order.UpdatedAt = cmd.now
				if err := s.Orders.Update(ctx, order); err != nil {
					return err
				}
			}

			entry = loaded
			return e.audit(ctx, s, cmd, models.AuditActionTimeEntryClose, string(models.EntityTimeEntry), entryID, before, loaded)
		})
		if err != nil {
			return err
		}
		e.record(cmd, checkpoints...)

		for _, issueID := range req.ResolvesIssueIDs {
			e.cascade(ctx, cmd, placeholder(models.StepIssueAutoClose, models.EntityPendingIssue, issueID), e.issueAutoCloseStep(cmd, issueID, entry))
		}
		e.cascade(ctx, cmd, placeholder(models.StepOrderReevaluate, models.EntityServiceOrder, cmd.order), e.orderReevaluateStep(cmd, true))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

func (e *Engine) issueAutoCloseStep(cmd *command, issueID string, closing *models.TimeEntry) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		outcome := models.CascadeOutcome{Step: models.StepIssueAutoClose, EntityType: models.EntityPendingIssue, EntityID: issueID}
		issue, err := s.Issues.Get(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if issue.Status == models.IssueStatusClosed {
			outcome.Status = models.CascadeSkipped
			outcome.Reason = "issue already closed"
			return []models.CascadeOutcome{outcome}, nil
		}
		closingID := closing.ID
		issue.Close(cmd.actor.UserID, &closingID, cmd.now)
		if err := s.Issues.Update(ctx, issue); err != nil {
			return nil, err
		}
		outcome.Status = models.CascadeApplied
		outcome.NewState = string(issue.Status)
		return []models.CascadeOutcome{outcome}, nil
	}
}

// ApproveTimeEntry marks a closed entry approved and auto-completes the
// sector's in-progress schedule. A second approval is rejected.
func (e *Engine) ApproveTimeEntry(ctx context.Context, actor models.Actor, entryID string) (*models.CommandResult[*models.TimeEntry], error) {
	current, err := e.uow.Stores().TimeEntries.Get(ctx, entryID)
	if err != nil {
		return nil, notFound(err, "time entry %s not found", entryID)
	}

	var entry *models.TimeEntry
	cmd, err := e.execute(ctx, "approve_time_entry", current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.TimeEntries.Get(ctx, entryID)
			if err != nil {
				return notFound(err, "time entry %s not found", entryID)
			}
			if !actor.CanSupervise(loaded.SectorID) {
				return appErrors.Clonef(appErrors.ErrForbidden, "actor cannot approve work of sector %s", loaded.SectorID)
			}
			if loaded.Open() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "time entry %s is still open", entryID)
			}
			if loaded.Approved {
				return appErrors.Clonef(appErrors.ErrInvalidState, "time entry %s is already approved", entryID)
			}

			approver := actor.UserID
			at := cmd.now
			loaded.Approved = true
			loaded.ApprovedBy = &approver
			loaded.ApprovedAt = &at
			if err := s.TimeEntries.Update(ctx, loaded); err != nil {
				return err
			}
			entry = loaded
			return e.audit(ctx, s, cmd, models.AuditActionTimeEntryApprove, string(models.EntityTimeEntry), entryID, nil, map[string]interface{}{"approvedBy": approver})
		})
		if err != nil {
			return err
		}

		placeholders := []models.CascadeOutcome{
			{Step: models.StepScheduleAutoComplete, EntityType: models.EntitySchedule},
			{Step: models.StepScheduleAutoApprove, EntityType: models.EntitySchedule},
		}
		e.cascade(ctx, cmd, placeholders, e.scheduleAutoApproveStep(cmd, entry.SectorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

// scheduleAutoApproveStep completes and approves the sector's in-progress
// schedule as one unit. Both hops commit or neither does.
func (e *Engine) scheduleAutoApproveStep(cmd *command, sectorID string) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		complete := models.CascadeOutcome{Step: models.StepScheduleAutoComplete, EntityType: models.EntitySchedule}
		approve := models.CascadeOutcome{Step: models.StepScheduleAutoApprove, EntityType: models.EntitySchedule}
		skip := func(reason string) ([]models.CascadeOutcome, error) {
			complete.Status, complete.Reason = models.CascadeSkipped, reason
			approve.Status, approve.Reason = models.CascadeSkipped, reason
			return []models.CascadeOutcome{complete, approve}, nil
		}

		order, err := s.Orders.GetForUpdate(ctx, cmd.order)
		if err != nil {
			return nil, err
		}
		if order.Status == models.OrderStatusBlocked || order.Status.Terminal() {
			return skip(fmt.Sprintf("order is %s", order.Status))
		}
		entries, err := s.Schedules.ListByOrderSector(ctx, cmd.order, sectorID, models.ScheduleStatusInProgress)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return skip(fmt.Sprintf("no in-progress schedule for sector %s", sectorID))
		}

		schedule := entries[0]
		complete.EntityID, approve.EntityID = schedule.ID, schedule.ID

		schedule.Complete(cmd.now)
		if err := s.Schedules.Update(ctx, &schedule); err != nil {
			return nil, err
		}
		complete.Status, complete.NewState = models.CascadeApplied, string(schedule.Status)

		schedule.Approve(models.SystemActorID, models.ApprovalTriggerTimeEntryApproval, cmd.now)
		if err := s.Schedules.Update(ctx, &schedule); err != nil {
			return nil, err
		}
		approve.Status, approve.NewState = models.CascadeApplied, string(schedule.Status)
		return []models.CascadeOutcome{complete, approve}, nil
	}
}
