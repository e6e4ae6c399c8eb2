package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/repository"
	"github.com/0x377/flashsale-core/internal/reservation"
)

// HoldHandler serves hold creation, lookup and release.
type HoldHandler struct {
	Engine *reservation.Engine
	Holds  *repository.HoldRepo
	Cfg    config.Config
}

// NewHoldHandler constructs a HoldHandler.
func NewHoldHandler(engine *reservation.Engine, holds *repository.HoldRepo, cfg config.Config) *HoldHandler {
	return &HoldHandler{Engine: engine, Holds: holds, Cfg: cfg}
}

type createHoldRequest struct {
	ProductID uint64  `json:"product_id"`
	Quantity  uint32  `json:"quantity"`
	SessionID *string `json:"session_id,omitempty"`
}

// CreateHold handles POST /holds.
func (h *HoldHandler) CreateHold(c echo.Context) error {
	var req createHoldRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid_request"})
	}
	if req.ProductID == 0 || req.Quantity < 1 || req.Quantity > h.Cfg.MaxHoldQuantity {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid_quantity"})
	}

	hold, err := h.Engine.Reserve(c.Request().Context(), req.ProductID, req.Quantity, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "product_missing"})
		case errors.Is(err, reservation.ErrProductInactive):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "product_inactive"})
		case errors.Is(err, reservation.ErrInsufficientStock):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "insufficient_stock"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"hold_id":            hold.ID,
		"product_id":         hold.ProductID,
		"quantity":           hold.Quantity,
		"expires_at":         hold.ExpiresAt.Format(time.RFC3339),
		"expires_in_seconds": int(time.Until(hold.ExpiresAt).Seconds()),
	})
}

// GetHold handles GET /holds/{id}.
func (h *HoldHandler) GetHold(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	hold, err := h.Holds.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         hold.ID,
		"product_id": hold.ProductID,
		"quantity":   hold.Quantity,
		"status":     hold.Status,
		"expires_at": hold.ExpiresAt.Format(time.RFC3339),
		"active":     hold.Status == model.HoldStatusPending && !hold.IsExpired(timeNow()),
	})
}

// ReleaseHold handles DELETE /holds/{id}. Idempotent for an already-expired
// hold (200); a hold already consumed by an order returns 422, per
// spec.md §6.
func (h *HoldHandler) ReleaseHold(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	_, err := h.Engine.Release(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
		case errors.Is(err, reservation.ErrHoldAlreadyConsumed):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "already_consumed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true})
}

func timeNow() time.Time { return time.Now().UTC() }
