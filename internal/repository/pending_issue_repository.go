package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/service-order-api/internal/models"
)

var pendingIssueColumns = []string{
	"id", "order_number", "origin_entry_id", "closing_entry_id", "status", "priority",
	"description", "customer_label", "sector_label", "opened_by", "opened_at", "closed_by", "closed_at",
}

// PendingIssueRepository persists pending issues.
type PendingIssueRepository struct {
	db sqlx.ExtContext
}

// NewPendingIssueRepository constructs the repository.
func NewPendingIssueRepository(db sqlx.ExtContext) *PendingIssueRepository {
	return &PendingIssueRepository{db: db}
}

// Create inserts a new open issue.
func (r *PendingIssueRepository) Create(ctx context.Context, issue *models.PendingIssue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusOpen
	}
	if issue.OpenedAt.IsZero() {
		issue.OpenedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pending_issues
	(id, order_number, origin_entry_id, closing_entry_id, status, priority, description,
	 customer_label, sector_label, opened_by, opened_at, closed_by, closed_at)
	VALUES (:id, :order_number, :origin_entry_id, :closing_entry_id, :status, :priority, :description,
	 :customer_label, :sector_label, :opened_by, :opened_at, :closed_by, :closed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, issue); err != nil {
		return fmt.Errorf("create pending issue: %w", err)
	}
	return nil
}

// Get fetches an issue by id.
func (r *PendingIssueRepository) Get(ctx context.Context, id string) (*models.PendingIssue, error) {
	query, args, err := psql.Select(pendingIssueColumns...).From("pending_issues").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending issue query: %w", err)
	}
	var issue models.PendingIssue
	if err := sqlx.GetContext(ctx, r.db, &issue, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get pending issue %s: %w", id, err)
	}
	return &issue, nil
}

// Update persists status and closing columns.
func (r *PendingIssueRepository) Update(ctx context.Context, issue *models.PendingIssue) error {
	const query = `UPDATE pending_issues SET
	status = :status, closing_entry_id = :closing_entry_id, closed_by = :closed_by, closed_at = :closed_at,
	priority = :priority, description = :description, customer_label = :customer_label, sector_label = :sector_label
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, issue)
	if err != nil {
		return fmt.Errorf("update pending issue %s: %w", issue.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check pending issue update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByOrder returns every issue of the order, oldest first.
func (r *PendingIssueRepository) ListByOrder(ctx context.Context, orderNumber string) ([]models.PendingIssue, error) {
	query, args, err := psql.Select(pendingIssueColumns...).From("pending_issues").
		Where(sq.Eq{"order_number": orderNumber}).
		OrderBy("opened_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending issue list: %w", err)
	}
	var issues []models.PendingIssue
	if err := sqlx.SelectContext(ctx, r.db, &issues, query, args...); err != nil {
		return nil, fmt.Errorf("list pending issues: %w", err)
	}
	return issues, nil
}

// CountOpen counts open issues on the order.
func (r *PendingIssueRepository) CountOpen(ctx context.Context, orderNumber string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("pending_issues").
		Where(sq.Eq{"order_number": orderNumber, "status": string(models.IssueStatusOpen)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build open issue count: %w", err)
	}
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count open issues: %w", err)
	}
	return count, nil
}

// UpdateCustomerLabel rewrites the denormalized customer label on every issue
// of the order whose label differs, returning the number of rows changed.
func (r *PendingIssueRepository) UpdateCustomerLabel(ctx context.Context, orderNumber, label string) (int64, error) {
	query, args, err := psql.Update("pending_issues").
		Set("customer_label", label).
		Where(sq.Eq{"order_number": orderNumber}).
		Where(sq.NotEq{"customer_label": label}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build customer label update: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update customer labels: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check customer label rows: %w", err)
	}
	return rows, nil
}
