package repository

import (
	"context"
	"database/sql"
)

// FailedWebhookRepo is the dead-letter sink for payment callbacks whose
// apply-outcome step keeps failing. Parking here is best-effort: a failure
// to park is logged by the caller and otherwise swallowed, since the
// original callback has already exhausted its retries.
type FailedWebhookRepo struct {
	db *sql.DB
}

// NewFailedWebhookRepo constructs a FailedWebhookRepo bound to the given database.
func NewFailedWebhookRepo(db *sql.DB) *FailedWebhookRepo { return &FailedWebhookRepo{db: db} }

// Insert records a webhook that failed to apply after exhausting retries.
func (r *FailedWebhookRepo) Insert(ctx context.Context, orderID, idempotencyKey string, payload []byte, lastErr string, attempts int) error {
	const q = `INSERT INTO failed_webhooks (order_id, idempotency_key, payload, last_error, attempts)
               VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, orderID, idempotencyKey, payload, lastErr, attempts)
	return err
}
