package models

import (
	"fmt"
	"time"
)

// OrderStatus is the aggregate status of a service order.
type OrderStatus string

const (
	OrderStatusOpen           OrderStatus = "OPEN"
	OrderStatusInProgress     OrderStatus = "IN_PROGRESS"
	OrderStatusAwaitingTests  OrderStatus = "AWAITING_TESTS"
	OrderStatusBlocked        OrderStatus = "BLOCKED"
	OrderStatusClosedAccepted OrderStatus = "CLOSED_ACCEPTED"
	OrderStatusClosedRejected OrderStatus = "CLOSED_REJECTED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	switch s {
	case OrderStatusOpen, OrderStatusInProgress, OrderStatusAwaitingTests, OrderStatusBlocked,
		OrderStatusClosedAccepted, OrderStatusClosedRejected, OrderStatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// Terminal reports whether no further workflow activity is allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosedAccepted, OrderStatusClosedRejected, OrderStatusCancelled:
		return true
	case OrderStatusOpen, OrderStatusInProgress, OrderStatusAwaitingTests, OrderStatusBlocked:
		return false
	}
	return false
}

// Closing reports whether s is one of the CLOSED_* states gated by checkpoints.
func (s OrderStatus) Closing() bool {
	switch s {
	case OrderStatusClosedAccepted, OrderStatusClosedRejected:
		return true
	case OrderStatusOpen, OrderStatusInProgress, OrderStatusAwaitingTests, OrderStatusBlocked, OrderStatusCancelled:
		return false
	}
	return false
}

// Checkpoint names one of the three test stages gating closure.
type Checkpoint string

const (
	CheckpointInitial Checkpoint = "initial"
	CheckpointPartial Checkpoint = "partial"
	CheckpointFinal   Checkpoint = "final"
)

// Checkpoints lists stages in the order they are expected to complete.
var Checkpoints = []Checkpoint{CheckpointInitial, CheckpointPartial, CheckpointFinal}

// ServiceOrder is the root aggregate of a unit of repair work.
type ServiceOrder struct {
	Number         string      `db:"number" json:"number"`
	Customer       string      `db:"customer" json:"customer"`
	Status         OrderStatus `db:"status" json:"status"`
	Priority       int         `db:"priority" json:"priority"`
	ExclusiveTests string      `db:"exclusive_tests" json:"exclusiveTests,omitempty"`

	InitialTestsDone bool       `db:"initial_tests_done" json:"initialTestsDone"`
	InitialTestsAt   *time.Time `db:"initial_tests_at" json:"initialTestsAt,omitempty"`
	InitialTestsBy   *string    `db:"initial_tests_by" json:"initialTestsBy,omitempty"`
	PartialTestsDone bool       `db:"partial_tests_done" json:"partialTestsDone"`
	PartialTestsAt   *time.Time `db:"partial_tests_at" json:"partialTestsAt,omitempty"`
	PartialTestsBy   *string    `db:"partial_tests_by" json:"partialTestsBy,omitempty"`
	FinalTestsDone   bool       `db:"final_tests_done" json:"finalTestsDone"`
	FinalTestsAt     *time.Time `db:"final_tests_at" json:"finalTestsAt,omitempty"`
	FinalTestsBy     *string    `db:"final_tests_by" json:"finalTestsBy,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CheckpointDone reports the state of a single checkpoint.
func (o *ServiceOrder) CheckpointDone(cp Checkpoint) bool {
	switch cp {
	case CheckpointInitial:
		return o.InitialTestsDone
	case CheckpointPartial:
		return o.PartialTestsDone
	case CheckpointFinal:
		return o.FinalTestsDone
	}
	return false
}

// MarkCheckpoint sets a checkpoint once; it returns false when it was
// already done so callers never overwrite the original closer.
func (o *ServiceOrder) MarkCheckpoint(cp Checkpoint, userID string, at time.Time) bool {
	if o.CheckpointDone(cp) {
		return false
	}
	by := userID
	ts := at
	switch cp {
	case CheckpointInitial:
		o.InitialTestsDone, o.InitialTestsAt, o.InitialTestsBy = true, &ts, &by
	case CheckpointPartial:
		o.PartialTestsDone, o.PartialTestsAt, o.PartialTestsBy = true, &ts, &by
	case CheckpointFinal:
		o.FinalTestsDone, o.FinalTestsAt, o.FinalTestsBy = true, &ts, &by
	default:
		return false
	}
	return true
}

// AllCheckpointsDone reports whether every test stage has been closed.
func (o *ServiceOrder) AllCheckpointsDone() bool {
	return o.InitialTestsDone && o.PartialTestsDone && o.FinalTestsDone
}

// FirstPendingCheckpoint returns the first stage not yet done.
func (o *ServiceOrder) FirstPendingCheckpoint() (Checkpoint, bool) {
	for _, cp := range Checkpoints {
		if !o.CheckpointDone(cp) {
			return cp, true
		}
	}
	return "", false
}

// OrderFilter constrains read-model listings.
type OrderFilter struct {
	Status      []OrderStatus
	Customer    string
	MinPriority *int
	Limit       int
	Offset      int
}

// OrderView is the read-model projection of an order and its children.
type OrderView struct {
	Order         ServiceOrder    `json:"order"`
	TimeEntries   []TimeEntry     `json:"timeEntries"`
	Schedules     []ScheduleEntry `json:"schedules"`
	PendingIssues []PendingIssue  `json:"pendingIssues"`
	OpenIssues    int             `json:"openIssues"`
}
