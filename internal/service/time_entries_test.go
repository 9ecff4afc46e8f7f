package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

func TestOpenTimeEntryStartsScheduleAndOrder(t *testing.T) {
	f := newFixture(t)
	f.schedule("sch-late", "sec-weld", models.ScheduleStatusPlanned, testNow.Add(3*time.Hour))
	f.schedule("sch-early", "sec-weld", models.ScheduleStatusPlanned, testNow.Add(time.Hour))

	result, err := f.engine.OpenTimeEntry(context.Background(), welder, "OS-100", dto.OpenTimeEntryRequest{})
	require.NoError(t, err)

	assert.Equal(t, "w-1", result.Entity.UserID)
	assert.Equal(t, "sec-weld", result.Entity.SectorID)
	assert.True(t, result.Entity.Open())
	assert.Equal(t, []string{"schedule_auto_start:applied", "order_start:applied"}, stepsOf(result.Cascades))
	assert.Equal(t, "sch-early", result.Cascades[0].EntityID)
	assert.Empty(t, result.Warnings)

	early, _ := f.store.Schedule("sch-early")
	assert.Equal(t, models.ScheduleStatusInProgress, early.Status)
	late, _ := f.store.Schedule("sch-late")
	assert.Equal(t, models.ScheduleStatusPlanned, late.Status)
	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusInProgress, order.Status)
}

func TestOpenTimeEntrySkipsWhenNothingToStart(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusInProgress, hourEarlier)
	f.schedule("sch-2", "sec-weld", models.ScheduleStatusPlanned, testNow.Add(time.Hour))

	result, err := f.engine.OpenTimeEntry(context.Background(), welder, "OS-100", dto.OpenTimeEntryRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule_auto_start:skipped", "order_start:skipped"}, stepsOf(result.Cascades))

	planned, _ := f.store.Schedule("sch-2")
	assert.Equal(t, models.ScheduleStatusPlanned, planned.Status)
}

func TestOpenTimeEntryConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.OpenTimeEntry(ctx, welder, "OS-100", dto.OpenTimeEntryRequest{})
	require.NoError(t, err)

	_, err = f.engine.OpenTimeEntry(ctx, welder, "OS-100", dto.OpenTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.engine.OpenTimeEntry(ctx, welder2, "OS-100", dto.OpenTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.engine.OpenTimeEntry(ctx, painter, "OS-100", dto.OpenTimeEntryRequest{})
	assert.NoError(t, err)
}

func TestOpenTimeEntryRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.OpenTimeEntry(ctx, welder, "OS-100", dto.OpenTimeEntryRequest{SectorID: "sec-paint"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.engine.OpenTimeEntry(ctx, plantAdmin, "OS-100", dto.OpenTimeEntryRequest{SectorID: "sec-unknown"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.OpenTimeEntry(ctx, plantAdmin, "OS-100", dto.OpenTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	future := testNow.Add(time.Hour)
	_, err = f.engine.OpenTimeEntry(ctx, welder, "OS-100", dto.OpenTimeEntryRequest{StartedAt: &future})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.setStatus(t, "OS-100", models.OrderStatusCancelled)
	_, err = f.engine.OpenTimeEntry(ctx, welder, "OS-100", dto.OpenTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestOpenTimeEntryUniqueViolationIsConflict(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault(repository.OpTimeEntryCreate, &pq.Error{Code: "23505", Constraint: "uq_time_entries_open_sector"})

	_, err := f.engine.OpenTimeEntry(context.Background(), welder, "OS-100", dto.OpenTimeEntryRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, err.Error(), "uq_time_entries_open_sector")

	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusOpen, order.Status)
	assert.Empty(t, f.store.AuditLogs())
}

func TestOpenTimeEntryConcurrentSameSectorOneWins(t *testing.T) {
	f := newFixture(t)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusPlanned, testNow)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []models.Actor{welder, welder2} {
		wg.Add(1)
		go func(i int, actor models.Actor) {
			defer wg.Done()
			_, errs[i] = f.engine.OpenTimeEntry(context.Background(), actor, "OS-100", dto.OpenTimeEntryRequest{})
		}(i, actor)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case appErrors.Code(err) == appErrors.ErrConflict.Code:
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	started := 0
	for _, log := range f.store.AuditLogs() {
		if log.Action == models.AuditActionTimeEntryOpen {
			started++
		}
	}
	assert.Equal(t, 1, started)
	sch, _ := f.store.Schedule("sch-1")
	assert.Equal(t, models.ScheduleStatusInProgress, sch.Status)
}

func TestCloseTimeEntryCompletesCheckpoints(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.openEntry(t, "te-1", welder)

	result, err := f.engine.CloseTimeEntry(context.Background(), welder, "te-1", dto.CloseTimeEntryRequest{Stages: allStages})
	require.NoError(t, err)

	require.NotNil(t, result.Entity.EndedAt)
	assert.Equal(t, testNow, *result.Entity.EndedAt)
	assert.Equal(t, []string{
		"order_checkpoint:applied", "order_checkpoint:applied", "order_checkpoint:applied",
		"order_reevaluate:applied",
	}, stepsOf(result.Cascades))
	assert.Equal(t, string(models.OrderStatusAwaitingTests), result.Cascades[3].NewState)

	order, _ := f.store.Order("OS-100")
	assert.True(t, order.AllCheckpointsDone())
	require.NotNil(t, order.FinalTestsBy)
	assert.Equal(t, "w-1", *order.FinalTestsBy)
	assert.Equal(t, models.OrderStatusAwaitingTests, order.Status)
}

func TestCloseTimeEntryKeepsExistingCheckpoint(t *testing.T) {
	f := newFixture(t)
	order, _ := f.store.Order("OS-100")
	order.Status = models.OrderStatusInProgress
	earlier := hourEarlier
	by := "w-9"
	order.InitialTestsDone, order.InitialTestsAt, order.InitialTestsBy = true, &earlier, &by
	f.store.PutOrder(order)
	f.openEntry(t, "te-1", welder)

	result, err := f.engine.CloseTimeEntry(context.Background(), welder, "te-1", dto.CloseTimeEntryRequest{
		Stages: models.StageFlags{Initial: true, Partial: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_checkpoint:skipped", "order_checkpoint:applied", "order_reevaluate:skipped"}, stepsOf(result.Cascades))

	order, _ = f.store.Order("OS-100")
	assert.Equal(t, "w-9", *order.InitialTestsBy)
	assert.True(t, order.PartialTestsDone)
	assert.False(t, order.FinalTestsDone)
	assert.Equal(t, models.OrderStatusInProgress, order.Status)
}

func TestCloseTimeEntryRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openEntry(t, "te-1", welder)
	f.closedEntry(t, "te-2", welder)

	_, err := f.engine.CloseTimeEntry(ctx, welder, "te-2", dto.CloseTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = f.engine.CloseTimeEntry(ctx, welder2, "te-1", dto.CloseTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	before := hourEarlier.Add(-time.Minute)
	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-1", dto.CloseTimeEntryRequest{EndedAt: &before})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	future := testNow.Add(48 * time.Hour)
	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-1", dto.CloseTimeEntryRequest{EndedAt: &future})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-1", dto.CloseTimeEntryRequest{Rework: true})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-1", dto.CloseTimeEntryRequest{Rework: true, ReworkCauseID: "rc-9"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-1", dto.CloseTimeEntryRequest{ResolvesIssueIDs: []string{"iss-404"}})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.engine.CloseTimeEntry(ctx, welder, "te-404", dto.CloseTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	entry, _ := f.store.TimeEntry("te-1")
	assert.True(t, entry.Open())
	order, _ := f.store.Order("OS-100")
	assert.False(t, order.InitialTestsDone)
}

func TestCloseTimeEntryBySupervisorWithRework(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.openEntry(t, "te-1", welder)

	result, err := f.engine.CloseTimeEntry(context.Background(), weldLead, "te-1", dto.CloseTimeEntryRequest{
		Rework: true, ReworkCauseID: "rc-1", Notes: "reworked seam",
	})
	require.NoError(t, err)
	assert.True(t, result.Entity.Rework)
	require.NotNil(t, result.Entity.ReworkCauseID)
	assert.Equal(t, "rc-1", *result.Entity.ReworkCauseID)
	assert.Equal(t, "reworked seam", result.Entity.Notes)
}

func TestCloseTimeEntryResolvesIssues(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusBlocked)
	f.issue("iss-1", models.IssueStatusOpen, "ACME")
	f.issue("iss-2", models.IssueStatusClosed, "ACME")
	f.openEntry(t, "te-1", welder)

	result, err := f.engine.CloseTimeEntry(context.Background(), welder, "te-1", dto.CloseTimeEntryRequest{
		ResolvesIssueIDs: []string{"iss-1", "iss-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pending_issue_auto_close:applied", "pending_issue_auto_close:skipped", "order_reevaluate:applied",
	}, stepsOf(result.Cascades))

	issue, _ := f.store.Issue("iss-1")
	assert.Equal(t, models.IssueStatusClosed, issue.Status)
	require.NotNil(t, issue.ClosingEntryID)
	assert.Equal(t, "te-1", *issue.ClosingEntryID)
	order, _ := f.store.Order("OS-100")
	assert.Equal(t, models.OrderStatusInProgress, order.Status)
}

func TestApproveTimeEntryCompletesAndApprovesSchedule(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusInProgress, hourEarlier)
	f.closedEntry(t, "te-1", welder)

	result, err := f.engine.ApproveTimeEntry(context.Background(), weldLead, "te-1")
	require.NoError(t, err)
	assert.True(t, result.Entity.Approved)
	require.NotNil(t, result.Entity.ApprovedBy)
	assert.Equal(t, "s-1", *result.Entity.ApprovedBy)
	assert.Equal(t, []string{"schedule_auto_complete:applied", "schedule_auto_approve:applied"}, stepsOf(result.Cascades))

	sch, _ := f.store.Schedule("sch-1")
	assert.Equal(t, models.ScheduleStatusApproved, sch.Status)
	require.NotNil(t, sch.ApprovedBy)
	assert.Equal(t, models.SystemActorID, *sch.ApprovedBy)
	require.NotNil(t, sch.ApprovalTrigger)
	assert.Equal(t, models.ApprovalTriggerTimeEntryApproval, *sch.ApprovalTrigger)
	require.NotNil(t, sch.ElapsedMinutes)
	assert.Equal(t, 90, *sch.ElapsedMinutes)

	_, err = f.engine.ApproveTimeEntry(context.Background(), weldLead, "te-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
	again, _ := f.store.Schedule("sch-1")
	assert.Equal(t, sch, again)
}

func TestApproveTimeEntryAuthority(t *testing.T) {
	f := newFixture(t)
	f.closedEntry(t, "te-1", welder)
	ctx := context.Background()

	_, err := f.engine.ApproveTimeEntry(ctx, welder, "te-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.engine.ApproveTimeEntry(ctx, paintLead, "te-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	result, err := f.engine.ApproveTimeEntry(ctx, plantAdmin, "te-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule_auto_complete:skipped", "schedule_auto_approve:skipped"}, stepsOf(result.Cascades))
}

func TestApproveTimeEntryRequiresClosedEntry(t *testing.T) {
	f := newFixture(t)
	f.openEntry(t, "te-1", welder)

	_, err := f.engine.ApproveTimeEntry(context.Background(), weldLead, "te-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	entry, _ := f.store.TimeEntry("te-1")
	assert.False(t, entry.Approved)
}

func TestApproveTimeEntryLeavesScheduleWhileBlocked(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusBlocked)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusInProgress, hourEarlier)
	f.closedEntry(t, "te-1", welder)

	result, err := f.engine.ApproveTimeEntry(context.Background(), weldLead, "te-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule_auto_complete:skipped", "schedule_auto_approve:skipped"}, stepsOf(result.Cascades))

	sch, _ := f.store.Schedule("sch-1")
	assert.Equal(t, models.ScheduleStatusInProgress, sch.Status)
}

func TestApproveTimeEntryCascadeFailureKeepsApproval(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, "OS-100", models.OrderStatusInProgress)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusInProgress, hourEarlier)
	f.closedEntry(t, "te-1", welder)
	f.store.InjectFault(repository.OpScheduleUpdate, assert.AnError)

	result, err := f.engine.ApproveTimeEntry(context.Background(), weldLead, "te-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule_auto_complete:failed", "schedule_auto_approve:failed"}, stepsOf(result.Cascades))
	assert.Len(t, result.Warnings, 2)

	entry, _ := f.store.TimeEntry("te-1")
	assert.True(t, entry.Approved)
	sch, _ := f.store.Schedule("sch-1")
	assert.Equal(t, models.ScheduleStatusInProgress, sch.Status)
}

func TestPrimaryFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.schedule("sch-1", "sec-weld", models.ScheduleStatusPlanned, testNow)
	f.store.InjectFault(repository.OpAuditCreate, assert.AnError)

	_, err := f.engine.OpenTimeEntry(context.Background(), welder, "OS-100", dto.OpenTimeEntryRequest{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	view, err := NewReadModelService(f.store, nil, 0, nil).GetOrder(context.Background(), "OS-100")
	require.NoError(t, err)
	assert.Empty(t, view.TimeEntries)
	assert.Equal(t, models.OrderStatusOpen, view.Order.Status)
	sch, _ := f.store.Schedule("sch-1")
	assert.Equal(t, models.ScheduleStatusPlanned, sch.Status)
}
