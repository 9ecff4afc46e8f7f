package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
	"github.com/noah-isme/service-order-api/pkg/lock"
	"github.com/noah-isme/service-order-api/pkg/middleware/requestid"
)

type catalogProvider interface {
	Snapshot(ctx context.Context) (*models.CatalogSnapshot, error)
}

type notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type readModelInvalidator interface {
	Invalidate(ctx context.Context, orderNumber string)
}

// Engine executes workflow commands. Each command runs under a per-order lock:
// the primary write commits in its own transaction, then every cascade step
// runs in a transaction of its own and reports an outcome instead of failing
// the command.
type Engine struct {
	uow       repository.UnitOfWork
	catalog   catalogProvider
	locker    lock.Locker
	notifier  notifier
	readModel readModelInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLocker overrides the in-process locker.
func WithLocker(l lock.Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(n notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithReadModel registers the read model whose cache is dropped after each command.
func WithReadModel(r readModelInvalidator) EngineOption {
	return func(e *Engine) {
		e.readModel = r
	}
}

// WithEngineMetrics enables Prometheus instrumentation.
func WithEngineMetrics(m *MetricsService) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithValidator shares a validator instance.
func WithValidator(v *validator.Validate) EngineOption {
	return func(e *Engine) {
		if v != nil {
			e.validator = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs the engine with an in-process locker waiting up to two seconds.
func NewEngine(uow repository.UnitOfWork, catalog catalogProvider, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		uow:       uow,
		catalog:   catalog,
		locker:    lock.NewLocal(2 * time.Second),
		validator: validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// command is the per-invocation state shared by the primary write and its cascades.
type command struct {
	name     string
	order    string
	actor    models.Actor
	catalog  *models.CatalogSnapshot
	now      time.Time
	outcomes []models.CascadeOutcome
	warnings []string
	notices  []Notification
}

func (c *command) notify(n Notification) {
	c.notices = append(c.notices, n)
}

func newResult[T any](cmd *command, entity T) *models.CommandResult[T] {
	cascades := cmd.outcomes
	if cascades == nil {
		cascades = []models.CascadeOutcome{}
	}
	return &models.CommandResult[T]{Entity: entity, Cascades: cascades, Warnings: cmd.warnings}
}

// execute validates the actor, serializes on the order, runs fn and then
// performs the post-lock side effects.
func (e *Engine) execute(ctx context.Context, name, orderNumber string, actor models.Actor, fn func(ctx context.Context, cmd *command) error) (cmd *command, err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = appErrors.FromError(err).Code
		}
		e.metrics.ObserveCommand(name, result, time.Since(started))
	}()

	if err := e.validator.Struct(actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid actor")
	}

	waitStart := time.Now()
	release, err := e.locker.Acquire(ctx, orderNumber)
	e.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Info("order lock busy", zap.String("command", name), zap.String("order", orderNumber))
			return nil, appErrors.Clonef(appErrors.ErrBusy, "order %s is busy, retry later", orderNumber)
		}
		return nil, appErrors.Internal(err, "failed to acquire order lock")
	}

	cmd = &command{name: name, order: orderNumber, actor: actor, now: e.now()}
	err = func() error {
		defer release()
		snapshot, err := e.catalog.Snapshot(ctx)
		if err != nil {
			return err
		}
		cmd.catalog = snapshot
		return fn(ctx, cmd)
	}()
	if err != nil {
		return nil, err
	}

	if e.readModel != nil {
		e.readModel.Invalidate(ctx, orderNumber)
	}
	e.dispatch(ctx, cmd)
	return cmd, nil
}

// primary runs the triggering write. Any error aborts the command.
func (e *Engine) primary(ctx context.Context, fn func(ctx context.Context, s repository.Stores) error) error {
	err := e.uow.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if constraint, ok := repository.UniqueViolation(err); ok {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
			fmt.Sprintf("concurrent write rejected by %s", constraint))
	}
	return appErrors.Internal(err, "failed to apply command")
}

// cascadeStep is a derived change. It returns its outcomes with status
// applied or skipped; returning an error rolls back everything it wrote.
type cascadeStep func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error)

// cascade runs step in its own transaction. On failure the placeholders are
// reported as failed and a warning is attached to the command.
func (e *Engine) cascade(ctx context.Context, cmd *command, placeholders []models.CascadeOutcome, step cascadeStep) []models.CascadeOutcome {
	var produced []models.CascadeOutcome
	err := e.uow.WithinTx(ctx, func(ctx context.Context, s repository.Stores) error {
		out, err := step(ctx, s)
		if err != nil {
			return err
		}
		produced = out
		return nil
	})
	if err != nil {
		produced = make([]models.CascadeOutcome, len(placeholders))
		for i, p := range placeholders {
			p.Status = models.CascadeFailed
			p.NewState = ""
			p.Reason = err.Error()
			produced[i] = p
			cmd.warnings = append(cmd.warnings, fmt.Sprintf("%s on %s %s failed: %v", p.Step, p.EntityType, p.EntityID, err))
		}
		e.logger.Warn("cascade step failed",
			zap.String("command", cmd.name),
			zap.String("order", cmd.order),
			zap.String("step", placeholders[0].Step),
			zap.Error(err),
		)
	}
	e.record(cmd, produced...)
	return produced
}

func (e *Engine) record(cmd *command, outcomes ...models.CascadeOutcome) {
	for _, o := range outcomes {
		e.metrics.ObserveCascade(o.Step, string(o.Status))
	}
	cmd.outcomes = append(cmd.outcomes, outcomes...)
}

func (e *Engine) dispatch(ctx context.Context, cmd *command) {
	for _, n := range cmd.notices {
		outcome := models.CascadeOutcome{
			Step:       models.StepNotify,
			EntityType: models.EntityNotification,
			EntityID:   n.UserID,
			Status:     models.CascadeApplied,
			NewState:   "queued",
		}
		switch {
		case e.notifier == nil:
			outcome.Status = models.CascadeSkipped
			outcome.NewState = ""
			outcome.Reason = "notifications disabled"
		default:
			if err := e.notifier.Notify(ctx, n); err != nil {
				outcome.Status = models.CascadeFailed
				outcome.NewState = ""
				outcome.Reason = err.Error()
				cmd.warnings = append(cmd.warnings, fmt.Sprintf("notification to %s not queued: %v", n.UserID, err))
				e.logger.Warn("notification not queued", zap.String("user_id", n.UserID), zap.Error(err))
			}
		}
		e.record(cmd, outcome)
	}
}

// audit appends the command's audit row inside the primary transaction.
func (e *Engine) audit(ctx context.Context, s repository.Stores, cmd *command, action, resource, resourceID string, oldValue, newValue interface{}) error {
	userID := cmd.actor.UserID
	rid := resourceID
	entry := &models.AuditLog{
		UserID:      &userID,
		Action:      action,
		Resource:    resource,
		ResourceID:  &rid,
		OrderNumber: cmd.order,
		OldValues:   marshalAudit(oldValue),
		NewValues:   marshalAudit(newValue),
		RequestID:   requestid.FromContext(ctx),
		CreatedAt:   cmd.now,
	}
	if err := s.Audit.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func (e *Engine) validate(payload interface{}) error {
	if err := e.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("invalid field %s: %s", verrs[0].Field(), verrs[0].Tag())
	}
	return appErrors.ErrValidation.Message
}

// notFound maps a store lookup error to NOT_FOUND or INTERNAL_ERROR.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clonef(appErrors.ErrNotFound, format, args...)
	}
	return appErrors.Internal(err, "failed to load "+fmt.Sprintf(format, args...))
}

// loadOrder reads the order outside any lock, used to resolve lock keys and
// fail fast on unknown numbers.
func (e *Engine) loadOrder(ctx context.Context, number string) (*models.ServiceOrder, error) {
	order, err := e.uow.Stores().Orders.Get(ctx, number)
	if err != nil {
		return nil, notFound(err, "order %s not found", number)
	}
	return order, nil
}

// openIssueID returns the first open issue of the order, empty when none.
func openIssueID(ctx context.Context, s repository.Stores, orderNumber string) (string, error) {
	issues, err := s.Issues.ListByOrder(ctx, orderNumber)
	if err != nil {
		return "", err
	}
	for _, issue := range issues {
		if issue.Status == models.IssueStatusOpen {
			return issue.ID, nil
		}
	}
	return "", nil
}

// orderStartStep moves an OPEN order to IN_PROGRESS once work begins.
func (e *Engine) orderStartStep(cmd *command) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		outcome := models.CascadeOutcome{Step: models.StepOrderStart, EntityType: models.EntityServiceOrder, EntityID: cmd.order}
		order, err := s.Orders.GetForUpdate(ctx, cmd.order)
		if err != nil {
			return nil, err
		}
		if order.Status != models.OrderStatusOpen {
			outcome.Status = models.CascadeSkipped
			outcome.Reason = fmt.Sprintf("order is %s", order.Status)
			return []models.CascadeOutcome{outcome}, nil
		}
		order.Status = models.OrderStatusInProgress
		order.UpdatedAt = cmd.now
		if err := s.Orders.Update(ctx, order); err != nil {
			return nil, err
		}
		outcome.Status = models.CascadeApplied
		outcome.NewState = string(order.Status)
		return []models.CascadeOutcome{outcome}, nil
	}
}

// orderReevaluateStep settles the order status from its checkpoints and open issues.
func (e *Engine) orderReevaluateStep(cmd *command, workStarted bool) cascadeStep {
	return func(ctx context.Context, s repository.Stores) ([]models.CascadeOutcome, error) {
		outcome := models.CascadeOutcome{Step: models.StepOrderReevaluate, EntityType: models.EntityServiceOrder, EntityID: cmd.order}
		order, err := s.Orders.GetForUpdate(ctx, cmd.order)
		if err != nil {
			return nil, err
		}
		open, err := s.Issues.CountOpen(ctx, cmd.order)
		if err != nil {
			return nil, err
		}
		target := settledStatus(order, open, workStarted)
		if target == order.Status {
			outcome.Status = models.CascadeSkipped
			outcome.Reason = fmt.Sprintf("order remains %s", order.Status)
			return []models.CascadeOutcome{outcome}, nil
		}
		if !canTransition(order.Status, target) {
			outcome.Status = models.CascadeSkipped
			outcome.Reason = fmt.Sprintf("no transition from %s to %s", order.Status, target)
			return []models.CascadeOutcome{outcome}, nil
		}
		order.Status = target
		order.UpdatedAt = cmd.now
		if err := s.Orders.Update(ctx, order); err != nil {
			return nil, err
		}
		outcome.Status = models.CascadeApplied
		outcome.NewState = string(target)
		return []models.CascadeOutcome{outcome}, nil
	}
}

func placeholder(step string, entity models.EntityType, id string) []models.CascadeOutcome {
	return []models.CascadeOutcome{{Step: step, EntityType: entity, EntityID: id}}
}
