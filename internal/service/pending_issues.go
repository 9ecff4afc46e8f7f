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

// OpenPendingIssue records a blocking issue and blocks the order in the same
// transaction. Customer and sector labels are copied onto the issue.
func (e *Engine) OpenPendingIssue(ctx context.Context, actor models.Actor, orderNumber string, req dto.OpenPendingIssueRequest) (*models.CommandResult[*models.PendingIssue], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var issue *models.PendingIssue
	cmd, err := e.execute(ctx, "open_pending_issue", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		sectorID := strings.TrimSpace(req.SectorID)
		if sectorID == "" {
			sectorID = actor.SectorID
		}
		if sectorID != "" {
			if _, ok := cmd.catalog.Sector(sectorID); !ok {
				return appErrors.Clonef(appErrors.ErrValidation, "unknown sector %s", sectorID)
			}
		}

		var block models.CascadeOutcome
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			order, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			if order.Status.Terminal() {
				return appErrors.Clonef(appErrors.ErrInvalidState, "order %s is %s", orderNumber, order.Status)
			}

			var origin *string
			if id := strings.TrimSpace(req.OriginEntryID); id != "" {
				entry, err := s.TimeEntries.Get(ctx, id)
				if err != nil {
					return notFound(err, "time entry %s not found", id)
				}
				if entry.OrderNumber != orderNumber {
					return appErrors.Clonef(appErrors.ErrValidation, "time entry %s does not belong to order %s", id, orderNumber)
				}
				origin = &id
			}

			issue = &models.PendingIssue{
				OrderNumber:   orderNumber,
				OriginEntryID: origin,
				Status:        models.IssueStatusOpen,
				Priority:      req.Priority,
				Description:   strings.TrimSpace(req.Description),
				CustomerLabel: order.Customer,
				SectorLabel:   cmd.catalog.SectorLabel(sectorID),
				OpenedBy:      actor.UserID,
				OpenedAt:      cmd.now,
			}
			if err := s.Issues.Create(ctx, issue); err != nil {
				return err
			}

			block = models.CascadeOutcome{Step: models.StepOrderBlock, EntityType: models.EntityServiceOrder, EntityID: orderNumber}
			if order.Status == models.OrderStatusBlocked {
				block.Status = models.CascadeSkipped
				block.Reason = "order already BLOCKED"
			} else {
				order.Status = models.OrderStatusBlocked
				order.UpdatedAt = cmd.now
				if err := s.Orders.Update(ctx, order); err != nil {
					return err
				}
				block.Status = models.CascadeApplied
				block.NewState = string(order.Status)
			}
			return e.audit(ctx, s, cmd, models.AuditActionIssueOpen, string(models.EntityPendingIssue), issue.ID, nil, issue)
		})
		if err != nil {
			return err
		}
		e.record(cmd, block)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, issue), nil
}

// ClosePendingIssue closes an issue and lets the order leave BLOCKED once no
// open issue remains.
func (e *Engine) ClosePendingIssue(ctx context.Context, actor models.Actor, issueID string, req dto.ClosePendingIssueRequest) (*models.CommandResult[*models.PendingIssue], error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	current, err := e.uow.Stores().Issues.Get(ctx, issueID)
	if err != nil {
		return nil, notFound(err, "pending issue %s not found", issueID)
	}

	var issue *models.PendingIssue
	cmd, err := e.execute(ctx, "close_pending_issue", current.OrderNumber, actor, func(ctx context.Context, cmd *command) error {
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Issues.Get(ctx, issueID)
			if err != nil {
				return notFound(err, "pending issue %s not found", issueID)
			}
			if loaded.Status == models.IssueStatusClosed {
				return appErrors.Clonef(appErrors.ErrInvalidState, "pending issue %s is already closed", issueID)
			}

			var closing *string
			if id := strings.TrimSpace(req.ClosingEntryID); id != "" {
				entry, err := s.TimeEntries.Get(ctx, id)
				if err != nil {
					return notFound(err, "time entry %s not found", id)
				}
				if entry.OrderNumber != loaded.OrderNumber {
					return appErrors.Clonef(appErrors.ErrValidation, "time entry %s does not belong to order %s", id, loaded.OrderNumber)
				}
				closing = &id
			}

			loaded.Close(actor.UserID, closing, cmd.now)
			if err := s.Issues.Update(ctx, loaded); err != nil {
				return err
			}
			issue = loaded
			return e.audit(ctx, s, cmd, models.AuditActionIssueClose, string(models.EntityPendingIssue), issueID, nil, map[string]interface{}{"status": loaded.Status, "closingEntryId": closing})
		})
		if err != nil {
			return err
		}
		e.cascade(ctx, cmd, placeholder(models.StepOrderReevaluate, models.EntityServiceOrder, cmd.order), e.orderReevaluateStep(cmd, true))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, issue), nil
}

// labelReconcileStep copies the order's customer onto every issue whose label drifted.
func (e *Engine) labelReconcileStep(cmd *command) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		order, err := s.Orders.Get(ctx, cmd.order)
		if err != nil {
			return nil, err
		}
		outcome, err := reconcileLabels(ctx, s, order)
		if err != nil {
			return nil, err
		}
		return []models.CascadeOutcome{outcome}, nil
	}
}

func reconcileLabels(ctx context.Context, s repository.Stores, order *models.ServiceOrder) (models.CascadeOutcome, error) {
	outcome := models.CascadeOutcome{Step: models.StepLabelReconcile, EntityType: models.EntityServiceOrder, EntityID: order.Number}
	changed, err := s.Issues.UpdateCustomerLabel(ctx, order.Number, order.Customer)
	if err != nil {
		return outcome, err
	}
	if changed == 0 {
		outcome.Status = models.CascadeSkipped
		outcome.Reason = "labels already consistent"
		return outcome, nil
	}
	outcome.Status = models.CascadeApplied
	outcome.NewState = order.Customer
	outcome.Reason = fmt.Sprintf("%d labels updated", changed)
	return outcome, nil
}
