package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/0x377/flashsale-core/internal/model"
)

// OrderRepo manages persistence for orders, including the conditional-update
// CAS idiom that enforces the order state machine's monotonic transitions
// at the database layer, not just in application code.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo constructs an OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying sql.DB so use-case packages can begin
// transactions spanning orders and other tables (holds, idempotency records).
func (r *OrderRepo) DB() *sql.DB { return r.db }

// CreateTx inserts a new pending order within the caller's transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o model.Order) error {
	const q = `INSERT INTO orders
               (id, product_id, hold_id, quantity, unit_price_cents, total_amount_cents, status, customer_email, customer_details)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		o.ID, o.ProductID, o.HoldID, o.Quantity, o.UnitPriceCents, o.TotalAmountCents, model.OrderStatusPending,
		o.CustomerEmail, o.CustomerDetails,
	)
	return err
}

// GetByID retrieves an order without locking, used by read paths and by the
// webhook processor before deciding whether to defer a callback.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	const q = `SELECT id, product_id, hold_id, quantity, unit_price_cents, total_amount_cents, status,
                      customer_email, customer_details, payment_reference, paid_at, cancelled_at, created_at
               FROM orders WHERE id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdateTx locks and returns an order for a terminal transition.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error) {
	const q = `SELECT id, product_id, hold_id, quantity, unit_price_cents, total_amount_cents, status,
                      customer_email, customer_details, payment_reference, paid_at, cancelled_at, created_at
               FROM orders WHERE id = ? FOR UPDATE`
	return scanOrder(tx.QueryRowContext(ctx, q, id))
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.ProductID, &o.HoldID, &o.Quantity, &o.UnitPriceCents, &o.TotalAmountCents, &o.Status,
		&o.CustomerEmail, &o.CustomerDetails, &o.PaymentReference, &o.PaidAt, &o.CancelledAt, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// MarkPaidTx transitions an order from pending to paid. The conditional
// WHERE status = 'pending' clause makes this a compare-and-swap: concurrent
// duplicate webhook deliveries racing on the same order will see
// RowsAffected() == 0 on the loser and must treat that as already-applied,
// not as an error.
func (r *OrderRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id, paymentReference string) (bool, error) {
	const q = `UPDATE orders SET status = ?, payment_reference = ?, paid_at = CURRENT_TIMESTAMP
               WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.OrderStatusPaid, paymentReference, id, model.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkFailedTx transitions an order from pending to failed.
func (r *OrderRepo) MarkFailedTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	const q = `UPDATE orders SET status = ?, cancelled_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.OrderStatusFailed, id, model.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkCancelledTx transitions an order from pending to cancelled, used by
// the admin cancel endpoint and the stale-pending sweep.
func (r *OrderRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	const q = `UPDATE orders SET status = ?, cancelled_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.OrderStatusCancelled, id, model.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// StalePending returns up to limit pending orders created before the given
// cutoff, for the lifecycle sweeper's payment-window expiry pass.
func (r *OrderRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const q = `SELECT id FROM orders WHERE status = ? AND created_at <= ? ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.OrderStatusPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
