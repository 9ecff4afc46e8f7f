package repository

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/noah-isme/service-order-api/internal/models"
)

// psql builds PostgreSQL statements with $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const pqUniqueViolation = "23505"

// UniqueViolation reports whether err carries a Postgres unique_violation and
// returns the name of the violated constraint.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// OrderStore persists the service order aggregate. Lookups return
// sql.ErrNoRows when the order does not exist.
type OrderStore interface {
	Get(ctx context.Context, number string) (*models.ServiceOrder, error)
	GetForUpdate(ctx context.Context, number string) (*models.ServiceOrder, error)
	Update(ctx context.Context, order *models.ServiceOrder) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.ServiceOrder, error)
}

// TimeEntryStore persists work sessions.
type TimeEntryStore interface {
	Create(ctx context.Context, entry *models.TimeEntry) error
	Get(ctx context.Context, id string) (*models.TimeEntry, error)
	Update(ctx context.Context, entry *models.TimeEntry) error
	ListOpenByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error)
	ListByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error)
}

// ScheduleStore persists planned work windows and their reassignment history.
type ScheduleStore interface {
	Create(ctx context.Context, entry *models.ScheduleEntry) error
	Get(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Update(ctx context.Context, entry *models.ScheduleEntry) error
	ListByOrder(ctx context.Context, orderNumber string) ([]models.ScheduleEntry, error)
	ListByOrderSector(ctx context.Context, orderNumber, sectorID string, statuses ...models.ScheduleStatus) ([]models.ScheduleEntry, error)
	AddHistory(ctx context.Context, history *models.ScheduleHistory) error
}

// PendingIssueStore persists blocking issues.
type PendingIssueStore interface {
	Create(ctx context.Context, issue *models.PendingIssue) error
	Get(ctx context.Context, id string) (*models.PendingIssue, error)
	Update(ctx context.Context, issue *models.PendingIssue) error
	ListByOrder(ctx context.Context, orderNumber string) ([]models.PendingIssue, error)
	CountOpen(ctx context.Context, orderNumber string) (int, error)
	UpdateCustomerLabel(ctx context.Context, orderNumber, label string) (int64, error)
}

// AuditStore appends audit records.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Stores groups the entity stores bound to one connection or transaction.
type Stores struct {
	Orders      OrderStore
	TimeEntries TimeEntryStore
	Schedules   ScheduleStore
	Issues      PendingIssueStore
	Audit       AuditStore
}

// UnitOfWork runs fn atomically: every write made through the provided
// stores commits together or not at all.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
	Stores() Stores
}
