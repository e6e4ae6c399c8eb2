package webhook

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validPayload() Payload {
	return Payload{
		OrderID:          uuid.NewString(),
		Status:           "success",
		PaymentReference: "ref-123",
		AmountCents:      1999,
		Currency:         "USD",
		Timestamp:        time.Now(),
	}
}

func TestValidatePayloadAccepted(t *testing.T) {
	if err := ValidatePayload(validPayload()); err != nil {
		t.Fatalf("expected a well-formed payload to pass, got %v", err)
	}
}

func TestValidatePayloadRejectsBadOrderID(t *testing.T) {
	p := validPayload()
	p.OrderID = "not-a-uuid"
	if err := ValidatePayload(p); err == nil {
		t.Fatal("expected a non-UUID order_id to fail validation")
	}
}

func TestValidatePayloadRejectsUnknownStatus(t *testing.T) {
	p := validPayload()
	p.Status = "refunded"
	if err := ValidatePayload(p); err == nil {
		t.Fatal("expected an out-of-enum status to fail validation")
	}
}

func TestValidatePayloadRejectsZeroAmount(t *testing.T) {
	p := validPayload()
	p.AmountCents = 0
	if err := ValidatePayload(p); err == nil {
		t.Fatal("expected a zero amount to fail validation")
	}
}

func TestValidatePayloadRejectsShortCurrency(t *testing.T) {
	p := validPayload()
	p.Currency = "US"
	if err := ValidatePayload(p); err == nil {
		t.Fatal("expected a 2-letter currency to fail validation")
	}
}

func TestValidatePayloadRejectsMissingPaymentReference(t *testing.T) {
	p := validPayload()
	p.PaymentReference = ""
	if err := ValidatePayload(p); err == nil {
		t.Fatal("expected an empty payment_reference to fail validation")
	}
}
