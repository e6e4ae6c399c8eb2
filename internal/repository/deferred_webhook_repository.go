package repository

import (
	"context"
	"database/sql"

	"github.com/0x377/flashsale-core/internal/model"
)

// DeferredWebhookRepo stores payment callbacks that arrived before their
// order existed, so the order machine can replay them in receipt order once
// the order is created (spec §4.4, the out-of-order webhook case).
type DeferredWebhookRepo struct {
	db *sql.DB
}

// NewDeferredWebhookRepo constructs a DeferredWebhookRepo bound to the given database.
func NewDeferredWebhookRepo(db *sql.DB) *DeferredWebhookRepo { return &DeferredWebhookRepo{db: db} }

// InsertTx parks a callback for an order that does not exist yet.
func (r *DeferredWebhookRepo) InsertTx(ctx context.Context, tx *sql.Tx, orderID, idempotencyKey string, payload []byte) error {
	const q = `INSERT INTO deferred_webhooks (order_id, idempotency_key, payload) VALUES (?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, orderID, idempotencyKey, payload)
	return err
}

// ListByOrderIDTx returns all parked callbacks for an order, oldest first,
// for replay immediately after the order is committed.
func (r *DeferredWebhookRepo) ListByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) ([]model.DeferredWebhook, error) {
	const q = `SELECT id, order_id, idempotency_key, payload, received_at
               FROM deferred_webhooks WHERE order_id = ? ORDER BY received_at ASC`
	rows, err := tx.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DeferredWebhook
	for rows.Next() {
		var w model.DeferredWebhook
		if err := rows.Scan(&w.ID, &w.OrderID, &w.IdempotencyKey, &w.Payload, &w.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteTx removes a parked callback after it has been replayed. The order
// machine calls it whatever the replay's result was.
func (r *DeferredWebhookRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `DELETE FROM deferred_webhooks WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, id)
	return err
}
