package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

func TestOpenPendingIssueBlocksOrder(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.openEntry(t, "te-1", welder)

	result, err := f.engine.OpenPendingIssue(context.Background(), welder, "OS-100", dto.OpenPendingIssueRequest{
		OriginEntryID: "te-1", Description: "  flange missing ", Priority: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, result.Entity.Status)
	assert.Equal(t, "ACME", result.Entity.CustomerLabel)
	assert.Equal(t, "Welding", result.Entity.SectorLabel)
	assert.Equal(t, "flange missing", result.Entity.Description)
	require.NotNil(t, result.Entity.OriginEntryID)
	assert.Equal(t, "te-1", *result.Entity.OriginEntryID)
	assert.Equal(t, []string{"order_block:applied"}, stepsOf(result.Cascades))

	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusBlocked, order.Status)

	second, err := f.engine.OpenPendingIssue(context.Background(), welder, "OS-100", dto.OpenPendingIssueRequest{Description: "paint run"})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_block:skipped"}, stepsOf(second.Cascades))
}

func TestOpenPendingIssueFromOpenOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.OpenPendingIssue(context.Background(), plantAdmin, "OS-100", dto.OpenPendingIssueRequest{Description: "drawing missing"})
	require.NoError(t, err)

	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusBlocked, order.Status)
	issues := 0
	for _, log := range f.store.AuditLogs() {
		if log.Action == models.AuditActionIssueOpen {
			issues++
		}
	}
	assert.Equal(t, 1, issues)
}

func TestOpenPendingIssueRejections(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.ServiceOrder{Number: "OS-200", Customer: "Globex", Status: models.OrderStatusOpen})
	f.store.PutTimeEntry(models.TimeEntry{ID: "te-other", OrderNumber: "OS-200", UserID: "w-1", SectorID: "sec-weld", StartedAt: hourEarlier})
	ctx := context.Background()

	_, err := f.engine.OpenPendingIssue(ctx, welder, "OS-100", dto.OpenPendingIssueRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.OpenPendingIssue(ctx, welder, "OS-100", dto.OpenPendingIssueRequest{Description: "x", Priority: 11})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.OpenPendingIssue(ctx, welder, "OS-100", dto.OpenPendingIssueRequest{Description: "x", OriginEntryID: "te-other"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.OpenPendingIssue(ctx, welder, "OS-100", dto.OpenPendingIssueRequest{Description: "x", SectorID: "sec-unknown"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.setStatus(t, "OS-100", models.OrderStatusClosedAccepted)
	_, err = f.engine.OpenPendingIssue(ctx, welder, "OS-100", dto.OpenPendingIssueRequest{Description: "x"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusClosedAccepted, order.Status)
}

func TestClosePendingIssueUnblocksToImpliedState(t *testing.T) {
	f := newFixture(t)
	order, _ := f.store.Order("OS-100")
	order.Status = models.OrderStatusBlocked
	by := "w-1"
	at := hourEarlier
	order.InitialTestsDone, order.InitialTestsBy, order.InitialTestsAt = true, &by, &at
	order.PartialTestsDone, order.PartialTestsBy, order.PartialTestsAt = true, &by, &at
	order.FinalTestsDone, order.FinalTestsBy, order.FinalTestsAt = true, &by, &at
	f.store.PutOrder(order)
	f.issue("iss-1", models.IssueStatusOpen, "ACME")
	f.issue("iss-2", models.IssueStatusOpen, "ACME")
	f.closedEntry(t, "te-1", welder)
	ctx := context.Background()

	first, err := f.engine.ClosePendingIssue(ctx, weldLead, "iss-1", dto.ClosePendingIssueRequest{ClosingEntryID: "te-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_reevaluate:skipped"}, stepsOf(first.Cascades))
	require.NotNil(t, first.Entity.ClosingEntryID)
	assert.Equal(t, "te-1", *first.Entity.ClosingEntryID)

	still, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusBlocked, still.Status)

	last, err := f.engine.ClosePendingIssue(ctx, weldLead, "iss-2", dto.ClosePendingIssueRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_reevaluate:applied"}, stepsOf(last.Cascades))
	assert.Equal(t, string(models.OrderStatusAwaitingTests), last.Cascades[0].NewState)

	_, err = f.engine.ClosePendingIssue(ctx, weldLead, "iss-2", dto.ClosePendingIssueRequest{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestClosePendingIssueRejectsForeignEntry(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(models.ServiceOrder{Number: "OS-200", Customer: "Globex", Status: models.OrderStatusOpen})
	f.store.PutTimeEntry(models.TimeEntry{ID: "te-other", OrderNumber: "OS-200", UserID: "w-1", SectorID: "sec-weld", StartedAt: hourEarlier})
	f.issue("iss-1", models.IssueStatusOpen, "ACME")

	_, err := f.engine.ClosePendingIssue(context.Background(), weldLead, "iss-1", dto.ClosePendingIssueRequest{ClosingEntryID: "te-other"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.ClosePendingIssue(context.Background(), weldLead, "iss-404", dto.ClosePendingIssueRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	issue, _ := f.store.Issue("iss-1")
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
}
