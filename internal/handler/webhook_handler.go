package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/webhook"
)

// WebhookHandler serves the payment-provider callback endpoint.
type WebhookHandler struct {
	Processor       *webhook.Processor
	SignatureHeader string
	TestMode        bool
}

// NewWebhookHandler constructs a WebhookHandler. testMode disables
// signature verification, matching spec.md §4.4 step 1's test-mode carve
// out; it must never be true against a production secret.
func NewWebhookHandler(processor *webhook.Processor, signatureHeader string, testMode bool) *WebhookHandler {
	return &WebhookHandler{Processor: processor, SignatureHeader: signatureHeader, TestMode: testMode}
}

// HandleWebhook handles POST /payments/webhook.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	idempotencyKey := c.Request().Header.Get("Idempotency-Key")
	signature := c.Request().Header.Get(h.SignatureHeader)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "unreadable_body"})
	}

	result, err := h.Processor.Process(c.Request().Context(), body, idempotencyKey, signature, h.TestMode)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
	}

	return c.Blob(result.HTTPStatus, echo.MIMEApplicationJSON, result.Body)
}
