package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/order"
	"github.com/0x377/flashsale-core/internal/repository"
)

// OrderHandler serves order creation and the supplemented admin cancel
// operation.
type OrderHandler struct {
	Machine *order.Machine
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(machine *order.Machine) *OrderHandler {
	return &OrderHandler{Machine: machine}
}

type createOrderRequest struct {
	HoldID          string  `json:"hold_id"`
	CustomerEmail   *string `json:"customer_email,omitempty"`
	CustomerDetails *string `json:"customer_details,omitempty"`
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil || req.HoldID == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid_request"})
	}

	o, err := h.Machine.CreateOrder(c.Request().Context(), req.HoldID, req.CustomerEmail, req.CustomerDetails)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrHoldMissing):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hold_missing"})
		case errors.Is(err, order.ErrHoldExpired):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hold_expired"})
		case errors.Is(err, order.ErrHoldAlreadyConsumed):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hold_already_consumed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"order_id":   o.ID,
		"status":     o.Status,
		"amount":     o.TotalAmountCents,
		"product_id": o.ProductID,
		"quantity":   o.Quantity,
		"created_at": o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// CancelOrder handles DELETE /orders/{id}, the supplemented admin
// cancellation operation exercising the pending -> cancelled transition
// spec.md's matrix names without an explicit trigger.
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	ok, err := h.Machine.CancelOrder(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
	}
	if !ok {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "already_terminal"})
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
}
