package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

const orderViewCachePrefix = "order:view:"

func requireAdmin(actor models.Actor) error {
	if !actor.Elevated() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

// SetOrderStatus applies an administrative status override. Closing requires
// every checkpoint and no open issue.
func (e *Engine) SetOrderStatus(ctx context.Context, actor models.Actor, orderNumber string, req dto.SetOrderStatusRequest) (*models.CommandResult[*models.ServiceOrder], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var order *models.ServiceOrder
	cmd, err := e.execute(ctx, "set_order_status", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		return e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			blocking, err := openIssueID(ctx, s, orderNumber)
			if err != nil {
				return err
			}
			if err := checkManualTransition(loaded, req.Status, blocking); err != nil {
				return err
			}

			previous := loaded.Status
			loaded.Status = req.Status
			loaded.UpdatedAt = cmd.now
			if err := s.Orders.Update(ctx, loaded); err != nil {
				return err
			}
			order = loaded
			return e.audit(ctx, s, cmd, models.AuditActionOrderStatus, string(models.EntityServiceOrder), orderNumber,
				map[string]interface{}{"status": previous},
				map[string]interface{}{"status": loaded.Status, "reason": req.Reason},
			)
		})
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, order), nil
}

// UpdateOrderCustomer renames the customer and reconciles the labels copied onto issues.
func (e *Engine) UpdateOrderCustomer(ctx context.Context, actor models.Actor, orderNumber string, req dto.UpdateOrderCustomerRequest) (*models.CommandResult[*models.ServiceOrder], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var order *models.ServiceOrder
	cmd, err := e.execute(ctx, "update_order_customer", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			previous := loaded.Customer
			loaded.Customer = req.Customer
			loaded.UpdatedAt = cmd.now
			if err := s.Orders.Update(ctx, loaded); err != nil {
				return err
			}
			order = loaded
			return e.audit(ctx, s, cmd, models.AuditActionOrderCustomer, string(models.EntityServiceOrder), orderNumber,
				map[string]interface{}{"customer": previous},
				map[string]interface{}{"customer": loaded.Customer},
			)
		})
		if err != nil {
			return err
		}
		e.cascade(ctx, cmd, placeholder(models.StepLabelReconcile, models.EntityServiceOrder, orderNumber), e.labelReconcileStep(cmd))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, order), nil
}

// ReconcileCustomerLabels re-runs label reconciliation on demand. Running it
// twice leaves the second run skipped.
func (e *Engine) ReconcileCustomerLabels(ctx context.Context, actor models.Actor, orderNumber string) (*models.CommandResult[*models.ServiceOrder], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := e.loadOrder(ctx, orderNumber); err != nil {
		return nil, err
	}

	var order *models.ServiceOrder
	cmd, err := e.execute(ctx, "reconcile_labels", orderNumber, actor, func(ctx context.Context, cmd *command) error {
		var outcome models.CascadeOutcome
		err := e.primary(ctx, func(ctx context.Context, s repository.Stores) error {
			loaded, err := s.Orders.GetForUpdate(ctx, orderNumber)
			if err != nil {
				return notFound(err, "order %s not found", orderNumber)
			}
			outcome, err = reconcileLabels(ctx, s, loaded)
			if err != nil {
				return err
			}
			order = loaded
			if outcome.Status == models.CascadeSkipped {
				return nil
			}
			return e.audit(ctx, s, cmd, models.AuditActionLabelsReconcile, string(models.EntityServiceOrder), orderNumber, nil,
				map[string]interface{}{"customerLabel": loaded.Customer, "result": outcome.Reason},
			)
		})
		if err != nil {
			return err
		}
		e.record(cmd, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(cmd, order), nil
}

// ReadModelService serves order snapshots to dashboards. Single-order views
// are cached and dropped by the engine after every command on the order.
type ReadModelService struct {
	uow    repository.UnitOfWork
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewReadModelService constructs the read model. cache may be nil.
func NewReadModelService(uow repository.UnitOfWork, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ReadModelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadModelService{uow: uow, cache: cache, ttl: ttl, logger: logger}
}

// GetOrder returns the order with its time entries, schedules and issues.
func (s *ReadModelService) GetOrder(ctx context.Context, number string) (*models.OrderView, error) {
	key := orderViewCachePrefix + number
	var cached models.OrderView
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	stores := s.uow.Stores()
	order, err := stores.Orders.Get(ctx, number)
	if err != nil {
		return nil, notFound(err, "order %s not found", number)
	}
	entries, err := stores.TimeEntries.ListByOrder(ctx, number)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load time entries")
	}
	schedules, err := stores.Schedules.ListByOrder(ctx, number)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedules")
	}
	issues, err := stores.Issues.ListByOrder(ctx, number)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load pending issues")
	}

	view := &models.OrderView{
		Order:         *order,
		TimeEntries:   nonNil(entries),
		Schedules:     nonNil(schedules),
		PendingIssues: nonNil(issues),
	}
	for _, issue := range issues {
		if issue.Status == models.IssueStatusOpen {
			view.OpenIssues++
		}
	}
	if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
		s.logger.Debug("order view not cached", zap.String("order", number), zap.Error(err))
	}
	return view, nil
}

// ListOrders returns orders matching the query. Lists are never cached.
func (s *ReadModelService) ListOrders(ctx context.Context, query dto.OrderQuery) ([]models.ServiceOrder, error) {
	orders, err := s.uow.Stores().Orders.List(ctx, models.OrderFilter{
		Status:      query.Status,
		Customer:    query.Customer,
		MinPriority: query.MinPriority,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list orders")
	}
	return nonNil(orders), nil
}

// Invalidate drops the cached view of the order.
func (s *ReadModelService) Invalidate(ctx context.Context, number string) {
	if err := s.cache.Invalidate(ctx, orderViewCachePrefix+number); err != nil {
		s.logger.Warn("order view invalidation failed", zap.String("order", number), zap.Error(err))
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
