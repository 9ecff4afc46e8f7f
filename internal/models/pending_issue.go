package models

import "time"

// IssueStatus is the open/closed state of a pending issue.
type IssueStatus string

const (
	IssueStatusOpen   IssueStatus = "open"
	IssueStatusClosed IssueStatus = "closed"
)

// PendingIssue is a blocking problem raised against an order.
// CustomerLabel and SectorLabel are denormalized copies kept in sync by the
// reconciliation routine; they are not authoritative.
type PendingIssue struct {
	ID             string      `db:"id" json:"id"`
	OrderNumber    string      `db:"order_number" json:"orderNumber"`
	OriginEntryID  *string     `db:"origin_entry_id" json:"originEntryId,omitempty"`
	ClosingEntryID *string     `db:"closing_entry_id" json:"closingEntryId,omitempty"`
	Status         IssueStatus `db:"status" json:"status"`
	Priority       int         `db:"priority" json:"priority"`
	Description    string      `db:"description" json:"description"`
	CustomerLabel  string      `db:"customer_label" json:"customerLabel"`
	SectorLabel    string      `db:"sector_label" json:"sectorLabel"`
	OpenedBy       string      `db:"opened_by" json:"openedBy"`
	OpenedAt       time.Time   `db:"opened_at" json:"openedAt"`
	ClosedBy       *string     `db:"closed_by" json:"closedBy,omitempty"`
	ClosedAt       *time.Time  `db:"closed_at" json:"closedAt,omitempty"`
}

// Close stamps closing metadata.
func (p *PendingIssue) Close(by string, closingEntryID *string, at time.Time) {
	ts := at
	closer := by
	p.Status = IssueStatusClosed
	p.ClosedBy = &closer
	p.ClosedAt = &ts
	p.ClosingEntryID = closingEntryID
}
