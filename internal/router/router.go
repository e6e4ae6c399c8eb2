package router

import (
	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/handler"
)

// Handlers groups every HTTP-facing handler the core registers. Kept as a
// single struct so RegisterRoutes has one small argument, the way the
// teacher's router package threads CustomerHandler through.
type Handlers struct {
	Products *handler.ProductHandler
	Holds    *handler.HoldHandler
	Orders   *handler.OrderHandler
	Webhooks *handler.WebhookHandler
}

// RegisterRoutes wires every row of the HTTP surface onto e, plus the
// health check the teacher's router already exposes.
func RegisterRoutes(e *echo.Echo, h Handlers, loadShed echo.MiddlewareFunc, responseCache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	e.GET("/products/:id", h.Products.GetProduct, responseCache)

	e.POST("/holds", h.Holds.CreateHold, loadShed)
	e.GET("/holds/:id", h.Holds.GetHold)
	e.DELETE("/holds/:id", h.Holds.ReleaseHold)

	e.POST("/orders", h.Orders.CreateOrder)
	e.DELETE("/orders/:id", h.Orders.CancelOrder)

	e.POST("/payments/webhook", h.Webhooks.HandleWebhook)
}
