package dto

import "github.com/noah-isme/service-order-api/internal/models"

// SetOrderStatusRequest is the administrative override payload.
type SetOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=OPEN IN_PROGRESS AWAITING_TESTS BLOCKED CLOSED_ACCEPTED CLOSED_REJECTED CANCELLED"`
	Reason string             `json:"reason" validate:"max=500"`
}

// UpdateOrderCustomerRequest changes the customer of an order.
type UpdateOrderCustomerRequest struct {
	Customer string `json:"customer" validate:"required,max=200"`
}

// OrderQuery mirrors supported listing filters.
type OrderQuery struct {
	Status      []models.OrderStatus
	Customer    string
	MinPriority *int
	Limit       int
	Offset      int
}
