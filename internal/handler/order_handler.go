package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/service-order-api/internal/dto"
	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
	"github.com/noah-isme/service-order-api/pkg/response"
)

type orderReader interface {
	GetOrder(ctx context.Context, number string) (*models.OrderView, error)
	ListOrders(ctx context.Context, query dto.OrderQuery) ([]models.ServiceOrder, error)
}

// OrderHandler serves the order read model.
type OrderHandler struct {
	reader orderReader
}

// NewOrderHandler builds a new handler.
func NewOrderHandler(reader orderReader) *OrderHandler {
	return &OrderHandler{reader: reader}
}

// List godoc
// @Summary List service orders
// @Tags Orders
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param customer query string false "Customer substring"
// @Param minPriority query int false "Minimum priority"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	query, err := parseOrderQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	orders, err := h.reader.ListOrders(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, &models.Pagination{Limit: query.Limit, Offset: query.Offset, Count: len(orders)})
}

// Get godoc
// @Summary Get an order with its time entries, schedules and pending issues
// @Tags Orders
// @Produce json
// @Param number path string true "Order number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /orders/{number} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	view, err := h.reader.GetOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func parseOrderQuery(c *gin.Context) (dto.OrderQuery, error) {
	var query dto.OrderQuery
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(part)))
			if err != nil {
				return query, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status filter")
			}
			query.Status = append(query.Status, status)
		}
	}
	query.Customer = strings.TrimSpace(c.Query("customer"))

	if raw := c.Query("minPriority"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "minPriority must be an integer")
		}
		query.MinPriority = &v
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return query, err
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return query, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query.Limit, query.Offset = limit, offset
	return query, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clonef(appErrors.ErrValidation, "%s must be an integer", key)
	}
	return v, nil
}
