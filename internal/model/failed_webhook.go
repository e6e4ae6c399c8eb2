package model

import "time"

// FailedWebhook is a payment callback parked for manual inspection after its
// apply-outcome step (spec §4.4 step 5) failed three times.  Parking a
// webhook here never blocks other callbacks from processing.
type FailedWebhook struct {
	ID             uint64    // failed_webhooks.id
	OrderID        string    // failed_webhooks.order_id
	IdempotencyKey string    // failed_webhooks.idempotency_key
	Payload        []byte    // failed_webhooks.payload
	LastError      string    // failed_webhooks.last_error
	Attempts       int       // failed_webhooks.attempts
	CreatedAt      time.Time // failed_webhooks.created_at
}
