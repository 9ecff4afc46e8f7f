package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/models"
)

func TestMemoryStoreRollsBackFailedTransaction(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(models.ServiceOrder{Number: "OS-1", Status: models.OrderStatusOpen})

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(ctx context.Context, s Stores) error {
		order, err := s.Orders.GetForUpdate(ctx, "OS-1")
		require.NoError(t, err)
		order.Status = models.OrderStatusInProgress
		require.NoError(t, s.Orders.Update(ctx, order))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	order, ok := store.Order("OS-1")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusOpen, order.Status)
}

func TestMemoryStoreInjectFaultFiresOnce(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(models.ServiceOrder{Number: "OS-1", Status: models.OrderStatusOpen})
	store.InjectFault(OpOrderUpdate, assert.AnError)

	update := func() error {
		return store.WithinTx(context.Background(), func(ctx context.Context, s Stores) error {
			order, err := s.Orders.Get(ctx, "OS-1")
			if err != nil {
				return err
			}
			order.Status = models.OrderStatusInProgress
			return s.Orders.Update(ctx, order)
		})
	}
	assert.ErrorIs(t, update(), assert.AnError)
	require.NoError(t, update())

	order, _ := store.Order("OS-1")
	assert.Equal(t, models.OrderStatusInProgress, order.Status)
}

func TestMemoryStoreCheckpointsNeverRegress(t *testing.T) {
	store := NewMemoryStore()
	at := time.Now()
	by := "u1"
	store.PutOrder(models.ServiceOrder{Number: "OS-1", InitialTestsDone: true, InitialTestsAt: &at, InitialTestsBy: &by})

	stale := &models.ServiceOrder{Number: "OS-1", Status: models.OrderStatusInProgress}
	require.NoError(t, store.Stores().Orders.Update(context.Background(), stale))

	order, _ := store.Order("OS-1")
	assert.True(t, order.InitialTestsDone)
	require.NotNil(t, order.InitialTestsBy)
	assert.Equal(t, "u1", *order.InitialTestsBy)
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Stores().Orders.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = store.Stores().Issues.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStoreListOrders(t *testing.T) {
	store := NewMemoryStore()
	store.PutOrder(models.ServiceOrder{Number: "OS-1", Customer: "ACME", Priority: 1, Status: models.OrderStatusOpen})
	store.PutOrder(models.ServiceOrder{Number: "OS-2", Customer: "acme mining", Priority: 5, Status: models.OrderStatusBlocked})
	store.PutOrder(models.ServiceOrder{Number: "OS-3", Customer: "Globex", Priority: 9, Status: models.OrderStatusOpen})

	orders, err := store.Stores().Orders.List(context.Background(), models.OrderFilter{Customer: "ACME"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "OS-2", orders[0].Number)

	orders, err = store.Stores().Orders.List(context.Background(), models.OrderFilter{Status: []models.OrderStatus{models.OrderStatusOpen}, Offset: 1})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "OS-1", orders[0].Number)
}

func TestMemoryStoreUpdateCustomerLabel(t *testing.T) {
	store := NewMemoryStore()
	store.PutIssue(models.PendingIssue{ID: "i1", OrderNumber: "OS-1", CustomerLabel: "old"})
	store.PutIssue(models.PendingIssue{ID: "i2", OrderNumber: "OS-1", CustomerLabel: "new"})
	store.PutIssue(models.PendingIssue{ID: "i3", OrderNumber: "OS-2", CustomerLabel: "old"})

	changed, err := store.Stores().Issues.UpdateCustomerLabel(context.Background(), "OS-1", "new")
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)
	other, _ := store.Issue("i3")
	assert.Equal(t, "old", other.CustomerLabel)
}
