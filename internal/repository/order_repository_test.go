package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/models"
)

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns)
}

func TestOrderRepositoryGetForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	rows := orderRows().AddRow("OS-100", "ACME", "OPEN", 3, "",
		true, now, "u1", false, nil, nil, false, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM service_orders WHERE number = $1 FOR UPDATE")).
		WithArgs("OS-100").
		WillReturnRows(rows)

	order, err := repo.GetForUpdate(context.Background(), "OS-100")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, order.Status)
	assert.True(t, order.InitialTestsDone)
	require.NotNil(t, order.InitialTestsBy)
	assert.Equal(t, "u1", *order.InitialTestsBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM service_orders WHERE number = $1")).
		WithArgs("OS-404").
		WillReturnRows(orderRows())

	_, err := repo.Get(context.Background(), "OS-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestOrderRepositoryUpdateKeepsCheckpointsMonotonic(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("initial_tests_done = initial_tests_done OR $5")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.ServiceOrder{Number: "OS-100", Customer: "ACME", Status: models.OrderStatusInProgress})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectExec("UPDATE service_orders").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.ServiceOrder{Number: "OS-404"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestOrderRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	rows := orderRows().AddRow("OS-200", "ACME Mining", "BLOCKED", 5, "",
		false, nil, nil, false, nil, nil, false, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM service_orders WHERE status IN ($1,$2) AND customer ILIKE $3 AND priority >= $4 ORDER BY priority DESC, number ASC LIMIT 50")).
		WithArgs("BLOCKED", "OPEN", "%acme%", 2).
		WillReturnRows(rows)

	min := 2
	orders, err := repo.List(context.Background(), models.OrderFilter{
		Status:      []models.OrderStatus{models.OrderStatusBlocked, models.OrderStatusOpen},
		Customer:    "acme",
		MinPriority: &min,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "OS-200", orders[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}
