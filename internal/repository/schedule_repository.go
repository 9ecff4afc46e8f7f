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

var scheduleColumns = []string{
	"id", "order_number", "sector_id", "department_id", "responsible_user_id",
	"planned_start", "planned_end", "status", "started_at", "completed_at", "elapsed_minutes",
	"approved_by", "approved_at", "approval_trigger", "cancel_reason", "notes",
	"created_by", "created_at", "updated_at",
}

// ScheduleRepository persists schedule entries.
type ScheduleRepository struct {
	db sqlx.ExtContext
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db sqlx.ExtContext) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a planned schedule entry.
func (r *ScheduleRepository) Create(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.ScheduleStatusPlanned
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	const query = `INSERT INTO schedule_entries
	(id, order_number, sector_id, department_id, responsible_user_id, planned_start, planned_end, status,
	 started_at, completed_at, elapsed_minutes, approved_by, approved_at, approval_trigger, cancel_reason,
	 notes, created_by, created_at, updated_at)
	VALUES (:id, :order_number, :sector_id, :department_id, :responsible_user_id, :planned_start, :planned_end, :status,
	 :started_at, :completed_at, :elapsed_minutes, :approved_by, :approved_at, :approval_trigger, :cancel_reason,
	 :notes, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, entry); err != nil {
		return fmt.Errorf("create schedule entry: %w", err)
	}
	return nil
}

// Get fetches a schedule entry by id.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	query, args, err := psql.Select(scheduleColumns...).From("schedule_entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schedule query: %w", err)
	}
	var entry models.ScheduleEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get schedule entry %s: %w", id, err)
	}
	return &entry, nil
}

// Update persists lifecycle and assignment columns.
func (r *ScheduleRepository) Update(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE schedule_entries SET
	sector_id = :sector_id, department_id = :department_id, responsible_user_id = :responsible_user_id,
	planned_start = :planned_start, planned_end = :planned_end, status = :status,
	started_at = :started_at, completed_at = :completed_at, elapsed_minutes = :elapsed_minutes,
	approved_by = :approved_by, approved_at = :approved_at, approval_trigger = :approval_trigger,
	cancel_reason = :cancel_reason, notes = :notes, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, entry)
	if err != nil {
		return fmt.Errorf("update schedule entry %s: %w", entry.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check schedule update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByOrder returns the order's schedule ordered by planned start.
func (r *ScheduleRepository) ListByOrder(ctx context.Context, orderNumber string) ([]models.ScheduleEntry, error) {
	return r.list(ctx, sq.Eq{"order_number": orderNumber})
}

// ListByOrderSector returns entries for an order/sector pair, optionally
// restricted to the given statuses.
func (r *ScheduleRepository) ListByOrderSector(ctx context.Context, orderNumber, sectorID string, statuses ...models.ScheduleStatus) ([]models.ScheduleEntry, error) {
	where := sq.And{sq.Eq{"order_number": orderNumber}, sq.Eq{"sector_id": sectorID}}
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		where = append(where, sq.Eq{"status": raw})
	}
	return r.list(ctx, where)
}

func (r *ScheduleRepository) list(ctx context.Context, where sq.Sqlizer) ([]models.ScheduleEntry, error) {
	query, args, err := psql.Select(scheduleColumns...).From("schedule_entries").
		Where(where).
		OrderBy("planned_start ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schedule list: %w", err)
	}
	var entries []models.ScheduleEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// AddHistory records a reassignment.
func (r *ScheduleRepository) AddHistory(ctx context.Context, history *models.ScheduleHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.ChangedAt.IsZero() {
		history.ChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_history
	(id, schedule_id, changed_by, previous_user_id, previous_sector_id, previous_start, previous_end,
	 new_user_id, new_sector_id, new_start, new_end, changed_at)
	VALUES (:id, :schedule_id, :changed_by, :previous_user_id, :previous_sector_id, :previous_start, :previous_end,
	 :new_user_id, :new_sector_id, :new_start, :new_end, :changed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, history); err != nil {
		return fmt.Errorf("create schedule history: %w", err)
	}
	return nil
}
