package service

import (
	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

// canTransition is the complete order transition table.
func canTransition(from, to models.OrderStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case models.OrderStatusOpen:
		switch to {
		case models.OrderStatusInProgress, models.OrderStatusAwaitingTests, models.OrderStatusBlocked, models.OrderStatusCancelled:
			return true
		case models.OrderStatusOpen, models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected:
			return false
		}
	case models.OrderStatusInProgress:
		switch to {
		case models.OrderStatusAwaitingTests, models.OrderStatusBlocked, models.OrderStatusCancelled,
			models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected:
			return true
		case models.OrderStatusOpen, models.OrderStatusInProgress:
			return false
		}
	case models.OrderStatusAwaitingTests:
		switch to {
		case models.OrderStatusBlocked, models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected, models.OrderStatusCancelled:
			return true
		case models.OrderStatusOpen, models.OrderStatusInProgress, models.OrderStatusAwaitingTests:
			return false
		}
	case models.OrderStatusBlocked:
		switch to {
		case models.OrderStatusInProgress, models.OrderStatusAwaitingTests, models.OrderStatusCancelled:
			return true
		case models.OrderStatusOpen, models.OrderStatusBlocked, models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected:
			return false
		}
	case models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected, models.OrderStatusCancelled:
		return false
	}
	return false
}

// settledStatus returns the status an order's facts imply. Terminal orders
// never move; OPEN orders only move once work has been recorded.
func settledStatus(order *models.ServiceOrder, openIssues int, workStarted bool) models.OrderStatus {
	switch order.Status {
	case models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected, models.OrderStatusCancelled:
		return order.Status
	case models.OrderStatusOpen:
		if openIssues > 0 {
			return models.OrderStatusBlocked
		}
		if !workStarted {
			return models.OrderStatusOpen
		}
	case models.OrderStatusInProgress, models.OrderStatusAwaitingTests, models.OrderStatusBlocked:
		if openIssues > 0 {
			return models.OrderStatusBlocked
		}
	}
	if order.AllCheckpointsDone() {
		return models.OrderStatusAwaitingTests
	}
	return models.OrderStatusInProgress
}

// checkManualTransition validates an administrative status override.
// openIssueID is the first open issue on the order, empty when none.
func checkManualTransition(order *models.ServiceOrder, target models.OrderStatus, openIssueID string) error {
	if order.Status.Terminal() {
		return appErrors.Clonef(appErrors.ErrInvalidState, "order %s is %s", order.Number, order.Status)
	}
	if order.Status == target {
		return appErrors.Clonef(appErrors.ErrInvalidState, "order %s is already %s", order.Number, target)
	}

	switch target {
	case models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected:
		if cp, pending := order.FirstPendingCheckpoint(); pending {
			return appErrors.Clonef(appErrors.ErrPreconditionFailed, "checkpoint %s_tests_done is not complete", cp)
		}
		if openIssueID != "" {
			return appErrors.Clonef(appErrors.ErrPreconditionFailed, "pending issue %s is still open", openIssueID)
		}
	case models.OrderStatusAwaitingTests:
		if cp, pending := order.FirstPendingCheckpoint(); pending {
			return appErrors.Clonef(appErrors.ErrPreconditionFailed, "checkpoint %s_tests_done is not complete", cp)
		}
		if openIssueID != "" {
			return appErrors.Clonef(appErrors.ErrPreconditionFailed, "pending issue %s is still open", openIssueID)
		}
	case models.OrderStatusBlocked:
		if openIssueID == "" {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "an order can only be blocked by an open pending issue")
		}
	case models.OrderStatusOpen, models.OrderStatusInProgress:
		if openIssueID != "" {
			return appErrors.Clonef(appErrors.ErrPreconditionFailed, "pending issue %s is still open", openIssueID)
		}
	case models.OrderStatusCancelled:
	}

	if !canTransition(order.Status, target) {
		return appErrors.Clonef(appErrors.ErrInvalidState, "cannot move order %s from %s to %s", order.Number, order.Status, target)
	}
	return nil
}
