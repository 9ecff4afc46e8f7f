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

var timeEntryColumns = []string{
	"id", "order_number", "user_id", "sector_id", "started_at", "ended_at",
	"approved", "approved_by", "approved_at", "rework", "rework_cause_id", "notes",
	"stage_initial", "stage_partial", "stage_final", "created_at", "updated_at",
}

// TimeEntryRepository persists time entries.
type TimeEntryRepository struct {
	db sqlx.ExtContext
}

// NewTimeEntryRepository constructs the repository.
func NewTimeEntryRepository(db sqlx.ExtContext) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

// Create inserts a new time entry.
func (r *TimeEntryRepository) Create(ctx context.Context, entry *models.TimeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	const query = `INSERT INTO time_entries
	(id, order_number, user_id, sector_id, started_at, ended_at, approved, approved_by, approved_at,
	 rework, rework_cause_id, notes, stage_initial, stage_partial, stage_final, created_at, updated_at)
	VALUES (:id, :order_number, :user_id, :sector_id, :started_at, :ended_at, :approved, :approved_by, :approved_at,
	 :rework, :rework_cause_id, :notes, :stage_initial, :stage_partial, :stage_final, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, entry); err != nil {
		return fmt.Errorf("create time entry: %w", err)
	}
	return nil
}

// Get fetches a time entry by id.
func (r *TimeEntryRepository) Get(ctx context.Context, id string) (*models.TimeEntry, error) {
	query, args, err := psql.Select(timeEntryColumns...).From("time_entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build time entry query: %w", err)
	}
	var entry models.TimeEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get time entry %s: %w", id, err)
	}
	return &entry, nil
}

// Update persists close and approval columns.
func (r *TimeEntryRepository) Update(ctx context.Context, entry *models.TimeEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_entries SET
	ended_at = :ended_at, approved = :approved, approved_by = :approved_by, approved_at = :approved_at,
	rework = :rework, rework_cause_id = :rework_cause_id, notes = :notes,
	stage_initial = :stage_initial, stage_partial = :stage_partial, stage_final = :stage_final,
	updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, entry)
	if err != nil {
		return fmt.Errorf("update time entry %s: %w", entry.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check time entry update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOpenByOrder returns entries of the order without an end timestamp.
func (r *TimeEntryRepository) ListOpenByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error) {
	return r.list(ctx, sq.And{sq.Eq{"order_number": orderNumber}, sq.Eq{"ended_at": nil}})
}

// ListByOrder returns every entry of the order, oldest first.
func (r *TimeEntryRepository) ListByOrder(ctx context.Context, orderNumber string) ([]models.TimeEntry, error) {
	return r.list(ctx, sq.Eq{"order_number": orderNumber})
}

func (r *TimeEntryRepository) list(ctx context.Context, where sq.Sqlizer) ([]models.TimeEntry, error) {
	query, args, err := psql.Select(timeEntryColumns...).From("time_entries").Where(where).OrderBy("started_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build time entry list: %w", err)
	}
	var entries []models.TimeEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	return entries, nil
}
