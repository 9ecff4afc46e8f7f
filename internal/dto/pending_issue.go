package dto

// OpenPendingIssueRequest raises a blocker on an order.
type OpenPendingIssueRequest struct {
	OriginEntryID string `json:"originEntryId"`
	SectorID      string `json:"sectorId"`
	Description   string `json:"description" validate:"required,max=2000"`
	Priority      int    `json:"priority" validate:"gte=0,lte=10"`
}

// ClosePendingIssueRequest resolves a blocker, optionally citing the entry that fixed it.
type ClosePendingIssueRequest struct {
	ClosingEntryID string `json:"closingEntryId"`
}
