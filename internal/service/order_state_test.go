package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

var allStatuses = []models.OrderStatus{
	models.OrderStatusOpen, models.OrderStatusInProgress, models.OrderStatusAwaitingTests, models.OrderStatusBlocked,
	models.OrderStatusClosedAccepted, models.OrderStatusClosedRejected, models.OrderStatusCancelled,
}

func orderWith(status models.OrderStatus, checkpoints ...models.Checkpoint) *models.ServiceOrder {
	order := &models.ServiceOrder{Number: "OS-1", Status: status}
	for _, cp := range checkpoints {
		order.MarkCheckpoint(cp, "u", time.Time{})
	}
	return order
}

func TestCanTransitionTerminalAndSelf(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if from == to || from.Terminal() {
				assert.False(t, canTransition(from, to), "%s -> %s", from, to)
			}
		}
	}
	assert.True(t, canTransition(models.OrderStatusOpen, models.OrderStatusInProgress))
	assert.True(t, canTransition(models.OrderStatusBlocked, models.OrderStatusAwaitingTests))
	assert.False(t, canTransition(models.OrderStatusBlocked, models.OrderStatusClosedAccepted))
	assert.False(t, canTransition(models.OrderStatusAwaitingTests, models.OrderStatusInProgress))
}

func TestSettledStatus(t *testing.T) {
	cases := []struct {
		name        string
		order       *models.ServiceOrder
		openIssues  int
		workStarted bool
		want        models.OrderStatus
	}{
		{"open without work", orderWith(models.OrderStatusOpen), 0, false, models.OrderStatusOpen},
		{"open with work", orderWith(models.OrderStatusOpen), 0, true, models.OrderStatusInProgress},
		{"open with issue", orderWith(models.OrderStatusOpen), 1, false, models.OrderStatusBlocked},
		{"in progress partial", orderWith(models.OrderStatusInProgress, models.CheckpointInitial), 0, true, models.OrderStatusInProgress},
		{"in progress complete", orderWith(models.OrderStatusInProgress, models.Checkpoints...), 0, true, models.OrderStatusAwaitingTests},
		{"blocked still open", orderWith(models.OrderStatusBlocked, models.Checkpoints...), 2, true, models.OrderStatusBlocked},
		{"blocked released complete", orderWith(models.OrderStatusBlocked, models.Checkpoints...), 0, true, models.OrderStatusAwaitingTests},
		{"blocked released partial", orderWith(models.OrderStatusBlocked), 0, false, models.OrderStatusInProgress},
		{"closed stays", orderWith(models.OrderStatusClosedAccepted, models.Checkpoints...), 3, true, models.OrderStatusClosedAccepted},
		{"cancelled stays", orderWith(models.OrderStatusCancelled), 0, true, models.OrderStatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, settledStatus(tc.order, tc.openIssues, tc.workStarted))
		})
	}
}

func TestCheckManualTransition(t *testing.T) {
	cases := []struct {
		name   string
		order  *models.ServiceOrder
		target models.OrderStatus
		issue  string
		want   *appErrors.Error
	}{
		{"close missing checkpoint", orderWith(models.OrderStatusInProgress, models.CheckpointInitial), models.OrderStatusClosedAccepted, "", appErrors.ErrPreconditionFailed},
		{"close with open issue", orderWith(models.OrderStatusAwaitingTests, models.Checkpoints...), models.OrderStatusClosedRejected, "iss-1", appErrors.ErrPreconditionFailed},
		{"close ready", orderWith(models.OrderStatusAwaitingTests, models.Checkpoints...), models.OrderStatusClosedAccepted, "", nil},
		{"close from in progress", orderWith(models.OrderStatusInProgress, models.Checkpoints...), models.OrderStatusClosedAccepted, "", nil},
		{"awaiting without checkpoints", orderWith(models.OrderStatusInProgress), models.OrderStatusAwaitingTests, "", appErrors.ErrPreconditionFailed},
		{"block without issue", orderWith(models.OrderStatusInProgress), models.OrderStatusBlocked, "", appErrors.ErrPreconditionFailed},
		{"block with issue", orderWith(models.OrderStatusInProgress), models.OrderStatusBlocked, "iss-1", nil},
		{"resume with issue", orderWith(models.OrderStatusBlocked), models.OrderStatusInProgress, "iss-1", appErrors.ErrPreconditionFailed},
		{"resume released", orderWith(models.OrderStatusBlocked), models.OrderStatusInProgress, "", nil},
		{"reopen", orderWith(models.OrderStatusInProgress), models.OrderStatusOpen, "", appErrors.ErrInvalidState},
		{"cancel blocked", orderWith(models.OrderStatusBlocked), models.OrderStatusCancelled, "iss-1", nil},
		{"same status", orderWith(models.OrderStatusInProgress), models.OrderStatusInProgress, "", appErrors.ErrInvalidState},
		{"terminal", orderWith(models.OrderStatusCancelled), models.OrderStatusOpen, "", appErrors.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkManualTransition(tc.order, tc.target, tc.issue)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
