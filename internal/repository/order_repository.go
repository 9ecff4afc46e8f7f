package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/service-order-api/internal/models"
)

var orderColumns = []string{
	"number", "customer", "status", "priority", "exclusive_tests",
	"initial_tests_done", "initial_tests_at", "initial_tests_by",
	"partial_tests_done", "partial_tests_at", "partial_tests_by",
	"final_tests_done", "final_tests_at", "final_tests_by",
	"created_at", "updated_at",
}

// OrderRepository persists service orders.
type OrderRepository struct {
	db sqlx.ExtContext
}

// NewOrderRepository constructs the repository on a pool or transaction.
func NewOrderRepository(db sqlx.ExtContext) *OrderRepository {
	return &OrderRepository{db: db}
}

// Get fetches an order by its external number.
func (r *OrderRepository) Get(ctx context.Context, number string) (*models.ServiceOrder, error) {
	return r.get(ctx, number, false)
}

// GetForUpdate fetches an order and locks its row until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, number string) (*models.ServiceOrder, error) {
	return r.get(ctx, number, true)
}

func (r *OrderRepository) get(ctx context.Context, number string, lock bool) (*models.ServiceOrder, error) {
	builder := psql.Select(orderColumns...).From("service_orders").Where(sq.Eq{"number": number})
	if lock {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order query: %w", err)
	}
	var order models.ServiceOrder
	if err := sqlx.GetContext(ctx, r.db, &order, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get order %s: %w", number, err)
	}
	return &order, nil
}

// Update writes the mutable columns of an order. Checkpoints are written with
// a monotonic guard so a stale writer can never reset them to false.
func (r *OrderRepository) Update(ctx context.Context, order *models.ServiceOrder) error {
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}
	query, args, err := psql.Update("service_orders").
		Set("customer", order.Customer).
		Set("status", order.Status).
		Set("priority", order.Priority).
		Set("exclusive_tests", order.ExclusiveTests).
		Set("initial_tests_done", sq.Expr("initial_tests_done OR ?", order.InitialTestsDone)).
		Set("initial_tests_at", sq.Expr("COALESCE(initial_tests_at, ?)", order.InitialTestsAt)).
		Set("initial_tests_by", sq.Expr("COALESCE(initial_tests_by, ?)", order.InitialTestsBy)).
		Set("partial_tests_done", sq.Expr("partial_tests_done OR ?", order.PartialTestsDone)).
		Set("partial_tests_at", sq.Expr("COALESCE(partial_tests_at, ?)", order.PartialTestsAt)).
		Set("partial_tests_by", sq.Expr("COALESCE(partial_tests_by, ?)", order.PartialTestsBy)).
		Set("final_tests_done", sq.Expr("final_tests_done OR ?", order.FinalTestsDone)).
		Set("final_tests_at", sq.Expr("COALESCE(final_tests_at, ?)", order.FinalTestsAt)).
		Set("final_tests_by", sq.Expr("COALESCE(final_tests_by, ?)", order.FinalTestsBy)).
		Set("updated_at", order.UpdatedAt).
		Where(sq.Eq{"number": order.Number}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build order update: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order %s: %w", order.Number, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check order update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns orders for dashboards, highest priority first.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.ServiceOrder, error) {
	builder := psql.Select(orderColumns...).From("service_orders")
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.Customer != "" {
		builder = builder.Where(sq.ILike{"customer": "%" + filter.Customer + "%"})
	}
	if filter.MinPriority != nil {
		builder = builder.Where(sq.GtOrEq{"priority": *filter.MinPriority})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query, args, err := builder.
		OrderBy("priority DESC", "number ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order list: %w", err)
	}

	var orders []models.ServiceOrder
	if err := sqlx.SelectContext(ctx, r.db, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
