package webhook

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Payload is the recognized shape of a payment-provider callback. Fields
// follow spec.md §4.4's input list; Metadata is free-form and never
// validated beyond being valid JSON, since its shape is provider-defined.
type Payload struct {
	OrderID          string          `json:"order_id" validate:"required,uuid4"`
	Status           string          `json:"status" validate:"required,oneof=success failed"`
	PaymentReference string          `json:"payment_reference" validate:"required"`
	AmountCents      int64           `json:"amount" validate:"required,gt=0"`
	Currency         string          `json:"currency" validate:"required,len=3"`
	Timestamp        time.Time       `json:"timestamp" validate:"required"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

var validate = validator.New()

// ValidatePayload runs struct validation over a decoded webhook payload.
func ValidatePayload(p Payload) error {
	return validate.Struct(p)
}
