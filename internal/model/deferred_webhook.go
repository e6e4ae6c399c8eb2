package model

import "time"

// DeferredWebhook is a payment callback received for an order_id that did
// not yet exist at the time the callback arrived.  It is replayed through
// the Webhook Processor once the order is created; idempotency records make
// the replay safe even if some other callback already finalized the order.
//
// Fields:
//
//	ID               – primary key identifier.
//	OrderID          – the order the callback refers to.
//	IdempotencyKey   – the original client idempotency key, replayed verbatim.
//	Payload          – raw request body, replayed verbatim.
//	ReceivedAt       – when the callback first arrived; replay preserves this order.
type DeferredWebhook struct {
	ID             uint64    // deferred_webhooks.id
	OrderID        string    // deferred_webhooks.order_id
	IdempotencyKey string    // deferred_webhooks.idempotency_key
	Payload        []byte    // deferred_webhooks.payload
	ReceivedAt     time.Time // deferred_webhooks.received_at
}
