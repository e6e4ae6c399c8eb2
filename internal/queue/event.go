// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderSettledEvent is published whenever the Webhook Processor drives an
// order to a terminal paid or failed state. It carries enough information
// for downstream consumers (settlement logs, notifications, analytics) to
// act without querying the primary database. Generalized from the
// teacher's BookingConfirmedEvent: same shape and delivery guarantees, a
// different domain event.
type OrderSettledEvent struct {
	OrderID          string `json:"order_id"`
	ProductID        uint64 `json:"product_id"`
	Quantity         uint32 `json:"quantity"`
	TotalAmountCents uint32 `json:"total_amount_cents"`
	Status           string `json:"status"`
	PaymentReference string `json:"payment_reference,omitempty"`
	SettledAt        string `json:"settled_at"`
}
