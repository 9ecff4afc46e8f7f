package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/models"
)

func TestTimeEntryRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_entries")).WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.TimeEntry{OrderNumber: "OS-100", UserID: "u1", SectorID: "s1", StartedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntryRepositoryCreateSurfacesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_entries")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_time_entries_open_user"})

	err := repo.Create(context.Background(), &models.TimeEntry{OrderNumber: "OS-100", UserID: "u1", SectorID: "s1", StartedAt: time.Now()})
	require.Error(t, err)
	constraint, ok := UniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "uq_time_entries_open_user", constraint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolationIgnoresOtherErrors(t *testing.T) {
	_, ok := UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)
	_, ok = UniqueViolation(assert.AnError)
	assert.False(t, ok)
	_, ok = UniqueViolation(nil)
	assert.False(t, ok)
}

func TestTimeEntryRepositoryListOpenByOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(timeEntryColumns).
		AddRow("te-1", "OS-100", "u1", "s1", now, nil, false, nil, nil, false, nil, "", false, false, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM time_entries WHERE (order_number = $1 AND ended_at IS NULL) ORDER BY started_at ASC")).
		WithArgs("OS-100").
		WillReturnRows(rows)

	entries, err := repo.ListOpenByOrder(context.Background(), "OS-100")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Open())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListByOrderSectorStatuses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(scheduleColumns).
		AddRow("se-1", "OS-100", "s1", "d1", "u1", now, now.Add(time.Hour), "planned",
			nil, nil, nil, nil, nil, nil, nil, "", "sup-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_entries WHERE (order_number = $1 AND sector_id = $2 AND status IN ($3,$4))")).
		WithArgs("OS-100", "s1", "planned", "in_progress").
		WillReturnRows(rows)

	entries, err := repo.ListByOrderSector(context.Background(), "OS-100", "s1", models.ScheduleStatusPlanned, models.ScheduleStatusInProgress)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ScheduleStatusPlanned, entries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryAddHistory(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_history")).WillReturnResult(sqlmock.NewResult(1, 1))

	h := &models.ScheduleHistory{ScheduleID: "se-1", ChangedBy: "sup-1", PreviousUserID: "u1", NewUserID: "u2"}
	require.NoError(t, repo.AddHistory(context.Background(), h))
	assert.NotEmpty(t, h.ID)
	assert.False(t, h.ChangedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingIssueRepositoryCountOpen(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingIssueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pending_issues WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountOpen(context.Background(), "OS-200")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingIssueRepositoryUpdateCustomerLabel(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingIssueRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pending_issues SET customer_label = $1 WHERE order_number = $2 AND customer_label <> $3")).
		WithArgs("ACME Ltd", "OS-100", "ACME Ltd").
		WillReturnResult(sqlmock.NewResult(0, 3))

	changed, err := repo.UpdateCustomerLabel(context.Background(), "OS-100", "ACME Ltd")
	require.NoError(t, err)
	assert.EqualValues(t, 3, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionTimeEntryOpen, Resource: "time_entry", OrderNumber: "OS-100"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryLoadSnapshot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("FROM departments").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("d1", "Electrical"))
	mock.ExpectQuery("FROM sectors").WillReturnRows(sqlmock.NewRows([]string{"id", "department_id", "name"}).AddRow("s1", "d1", "Winding"))
	mock.ExpectQuery("FROM activity_types").WillReturnRows(sqlmock.NewRows([]string{"id", "label"}))
	mock.ExpectQuery("FROM machine_types").WillReturnRows(sqlmock.NewRows([]string{"id", "label"}).AddRow("m1", "Motor"))
	mock.ExpectQuery("FROM rework_causes").WillReturnRows(sqlmock.NewRows([]string{"id", "label"}).AddRow("c1", "Bad insulation"))

	snapshot, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Winding", snapshot.SectorLabel("s1"))
	_, ok := snapshot.ReworkCause("c1")
	assert.True(t, ok)
	assert.Len(t, snapshot.MachineTypes, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, s Stores) error {
		return s.Audit.CreateAuditLog(ctx, &models.AuditLog{Action: "X"})
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, s Stores) error {
		return s.Audit.CreateAuditLog(ctx, &models.AuditLog{Action: "X"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
