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

// CreateSchedule plans a work window for a sector and notifies the responsible user.
func (e *Engine) CreateSchedule(ctx context.Context, actor models.Actor, orderNumber string, req dto.CreateScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var entry *models.ScheduleEntry
	cmd, err := e.execute(ctx, "create_schedule", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		sector, ok := cmd.catalog.Sector(req.SectorID)
		if !ok {
			return appErrors.Clonef(appErrors.ErrValidation, "unknown sector %s", req.SectorID)
		}
		if !actor.CanSupervise(sector.ID) {
			return appErrors.Clonef(appErrors.ErrForbidden, "actor cannot plan work for sector %s", sector.ID)
		}

		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			order, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			if order.Status.Terminal() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "order %s is %s", orderNumber, order.Status)
			}
			entry = &models.ScheduleEntry{
				OrderNumber:       orderNumber,
				SectorID:          sector.ID,
				DepartmentID:      sector.DepartmentID,
				ResponsibleUserID: req.ResponsibleUserID,
				PlannedStart:      req.PlannedStart.UTC(),
				PlannedEnd:        req.PlannedEnd.UTC(),
				Status:            models.ScheduleStatusPlanned,
				Notes:             req.Notes,
				CreatedBy:         actor.UserID,
				CreatedAt:         cmd.now,
				UpdatedAt:         cmd.now,
			}
			if err := s.Schedules.Create(ctx, entry); err != nil {
				return err
			}
			return e.audit(ctx, s, cmd, models.AuditActionScheduleCreate, string(models.EntitySchedule), entry.ID, nil, entry)
		})
		if err != nil {
			return err
		}

		cmd.notify(scheduleNotice("Work scheduled", entry))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

// StartSchedule moves a planned entry to in_progress. Only one entry per
// order and sector may be in progress.
func (e *Engine) StartSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error) {
	current, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	var entry *models.ScheduleEntry
	cmd, err := e.execute(ctx, "start_schedule", current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Schedules.Get(ctx, scheduleID)
			if err != nil {
				return notFound(err, "schedule %s not found", scheduleID)
			}
			if !canOperateSchedule(actor, loaded) {
				return appErrors.Clone(appErrors.ErrForbidden, "only the responsible user or a supervisor of the sector may start this schedule")
			}
			if loaded.Status != models.ScheduleStatusPlanned {
				return appErrors.Clonef(appErrors.ErrInvalidState, "schedule %s is %s", scheduleID, loaded.Status)
			}
			running, err := s.Schedules.ListByOrderSector(ctx, loaded.OrderNumber, loaded.SectorID, models.ScheduleStatusInProgress)
			if err != nil {
				return err
			}
			if len(running) > 0 {
				return appErrors.Clonef(appErrors.ErrConflict, "schedule %s is already in progress for sector %s", running[0].ID, loaded.SectorID)
			}

			at := cmd.now
			loaded.Status = models.ScheduleStatusInProgress
			loaded.StartedAt = &at
			loaded.UpdatedAt = cmd.now
			if err := s.Schedules.Update(ctx, loaded); err != nil {
				return err
			}
			entry = loaded
			return e.audit(ctx, s, cmd, models.AuditActionScheduleStart, string(models.EntitySchedule), scheduleID, nil, map[string]interface{}{"status": loaded.Status})
		})
		if err != nil {
			return err
		}
		e.cascade(ctx, cmd, placeholder(models.StepOrderStart, models.EntityServiceOrder, cmd.order), e.orderStartStep(cmd))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

// FinishSchedule completes an in-progress entry and records elapsed minutes.
func (e *Engine) FinishSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error) {
	return e.updateSchedule(ctx, "finish_schedule", actor, scheduleID, func(cmd *command, entry *models.ScheduleEntry) (string, interface{}, error) {
		if !canOperateSchedule(actor, entry) {
			return "", nil, appErrors.Clone(appErrors.ErrForbidden, "only the responsible user or a supervisor of the sector may finish this schedule")
		}
		if entry.Status != models.ScheduleStatusInProgress {
			return "", nil, appErrors.Clonef(appErrors.ErrInvalidState, "schedule %s is %s", entry.ID, entry.Status)
		}
		entry.Complete(cmd.now)
		return models.AuditActionScheduleFinish, map[string]interface{}{"status": entry.Status, "elapsedMinutes": entry.ElapsedMinutes}, nil
	})
}

// ApproveSchedule records a manual approval of a completed entry.
func (e *Engine) ApproveSchedule(ctx context.Context, actor models.Actor, scheduleID string) (*models.CommandResult[*models.ScheduleEntry], error) {
	return e.updateSchedule(ctx, "approve_schedule", actor, scheduleID, func(cmd *command, entry *models.ScheduleEntry) (string, interface{}, error) {
		if !actor.CanSupervise(entry.SectorID) {
			return "", nil, appErrors.Clonef(appErrors.ErrForbidden, "actor cannot approve work of sector %s", entry.SectorID)
		}
		if entry.Status != models.ScheduleStatusCompleted {
			return "", nil, appErrors.Clonef(appErrors.ErrInvalidState, "schedule %s is %s", entry.ID, entry.Status)
		}
		entry.Approve(actor.UserID, models.ApprovalTriggerManual, cmd.now)
		return models.AuditActionScheduleApprove, map[string]interface{}{"status": entry.Status, "approvedBy": actor.UserID}, nil
	})
}

// CancelSchedule abandons a planned or in-progress entry. The order status is untouched.
func (e *Engine) CancelSchedule(ctx context.Context, actor models.Actor, scheduleID string, req dto.CancelScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancel reason is required")
	}
	return e.updateSchedule(ctx, "cancel_schedule", actor, scheduleID, func(cmd *command, entry *models.ScheduleEntry) (string, interface{}, error) {
		if !actor.CanSupervise(entry.SectorID) {
			return "", nil, appErrors.Clonef(appErrors.ErrForbidden, "actor cannot cancel work of sector %s", entry.SectorID)
		}
		if !entry.Status.Mutable() {
			return "", nil, appErrors.Clonef(appErrors.ErrInvalidState, "schedule %s is %s", entry.ID, entry.Status)
		}
		entry.Status = models.ScheduleStatusCancelled
		entry.CancelReason = &reason
		entry.UpdatedAt = cmd.now
		return models.AuditActionScheduleCancel, map[string]interface{}{"status": entry.Status, "reason": reason}, nil
	})
}

// ReassignSchedule moves an entry to another user, sector or window while
// keeping its identity. Each reassignment is written to the history table.
func (e *Engine) ReassignSchedule(ctx context.Context, actor models.Actor, scheduleID string, req dto.ReassignScheduleRequest) (*models.CommandResult[*models.ScheduleEntry], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	current, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	var entry *models.ScheduleEntry
	cmd, err := e.execute(ctx, "reassign_schedule", current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Schedules.Get(ctx, scheduleID)
			if err != nil {
				return notFound(err, "schedule %s not found", scheduleID)
			}
			if !actor.CanSupervise(loaded.SectorID) {
				return appErrors.Clonef(appErrors.ErrForbidden, "actor cannot reassign work of sector %s", loaded.SectorID)
			}
			if !loaded.Status.Mutable() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "schedule %s is %s and cannot be reassigned", scheduleID, loaded.Status)
			}

			sectorID := loaded.SectorID
			departmentID := loaded.DepartmentID
			if target := strings.TrimSpace(req.SectorID); target != "" && target != loaded.SectorID {
				sector, ok := cmd.catalog.Sector(target)
				if !ok {
					return appErrors.Clonef(appErrors.ErrValidation, "unknown sector %s", target)
				}
				if !actor.CanSupervise(sector.ID) {
					return appErrors.Clonef(appErrors.ErrForbidden, "actor cannot assign work to sector %s", sector.ID)
				}
				if loaded.Status == models.ScheduleStatusInProgress {
					running, err := s.Schedules.ListByOrderSector(ctx, loaded.OrderNumber, sector.ID, models.ScheduleStatusInProgress)
					if err != nil {
						return err
					}
					if len(running) > 0 {
						return appErrors.Clonef(appErrors.ErrConflict, "schedule %s is already in progress for sector %s", running[0].ID, sector.ID)
					}
				}
				sectorID, departmentID = sector.ID, sector.DepartmentID
			}

			start, end := loaded.PlannedStart, loaded.PlannedEnd
			if req.PlannedStart != nil {
				start = req.PlannedStart.UTC()
			}
			if req.PlannedEnd != nil {
				end = req.PlannedEnd.UTC()
			}
			if !end.After(start) {
				return appErrors.Clone(appErrors.ErrValidation, "planned end must be after planned start")
			}

			history := &models.ScheduleHistory{
				ScheduleID:       loaded.ID,
				ChangedBy:        actor.UserID,
				PreviousUserID:   loaded.ResponsibleUserID,
				PreviousSectorID: loaded.SectorID,
				PreviousStart:    loaded.PlannedStart,
				PreviousEnd:      loaded.PlannedEnd,
				NewUserID:        req.ResponsibleUserID,
				NewSectorID:      sectorID,
				NewStart:         start,
				NewEnd:           end,
				ChangedAt:        cmd.now,
			}

			loaded.ResponsibleUserID = req.ResponsibleUserID
			loaded.SectorID = sectorID
			loaded.DepartmentID = departmentID
			loaded.PlannedStart = start
			loaded.PlannedEnd = end
			loaded.UpdatedAt = cmd.now
			if err := s.Schedules.Update(ctx, loaded); err != nil {
				return err
			}
			if err := s.Schedules.AddHistory(ctx, history); err != nil {
				return err
			}
			entry = loaded
			return e.audit(ctx, s, cmd, models.AuditActionScheduleReassign, string(models.EntitySchedule), scheduleID, history, nil)
		})
		if err != nil {
			return err
		}

		cmd.notify(scheduleNotice("Work reassigned to you", entry))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

// updateSchedule runs a single-entry schedule transition with no cascades.
// mutate checks authority and state, changes entry in place and names the
// audit action.
func (e *Engine) updateSchedule(ctx context.Context, name string, actor models.Actor, scheduleID string, mutate func(cmd *command, entry *models.ScheduleEntry) (string, interface{}, error)) (*models.CommandResult[*models.ScheduleEntry], error) {
	current, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	var entry *models.ScheduleEntry
	cmd, err := e.execute(ctx, name, current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		return e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Schedules.Get(ctx, scheduleID)
			if err != nil {
				return notFound(err, "schedule %s not found", scheduleID)
			}
			action, audited, err := mutate(cmd, loaded)
			if err != nil {
				return err
			}
			if err := s.Schedules.Update(ctx, loaded); err != nil {
				return err
			}
			entry = loaded
			return e.audit(ctx, s, cmd, action, string(models.EntitySchedule), scheduleID, nil, audited)
		})
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, entry), nil
}

func (e *Engine) loadSchedule(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	entry, err := e.uow.Stores().Schedules.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "schedule %s not found", id)
	}
	return entry, nil
}

func canOperateSchedule(actor models.Actor, entry *models.ScheduleEntry) bool {
	return entry.ResponsibleUserID == actor.UserID || actor.CanSupervise(entry.SectorID)
}

func scheduleNotice(subject string, entry *models.ScheduleEntry) Notification {
	return Notification{
		UserID:  entry.ResponsibleUserID,
		Subject: fmt.Sprintf("%s: order %s", subject, entry.OrderNumber),
		Payload: map[string]interface{}{
			"scheduleId":   entry.ID,
			"orderNumber":  entry.OrderNumber,
			"sectorId":     entry.SectorID,
			"plannedStart": entry.PlannedStart,
			"plannedEnd":   entry.PlannedEnd,
		},
	}
}
