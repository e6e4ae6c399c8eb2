package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/0x377/flashsale-core/internal/model"
)

// HoldRepo provides data access to the holds table: creation, expiry
// sweeping and the terminal consume/release transitions. All methods
// operate in UTC; callers must ensure expiration comparisons use UTC.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// CreateTx inserts a new pending hold within the caller's transaction.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error {
	const q = `INSERT INTO holds (id, product_id, quantity, session_id, status, expires_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, h.ID, h.ProductID, h.Quantity, h.SessionID, model.HoldStatusPending, h.ExpiresAt.UTC())
	return err
}

// GetByID retrieves a hold without locking, used by the read-only
// GET /holds/{id} endpoint.
func (r *HoldRepo) GetByID(ctx context.Context, id string) (*model.Hold, error) {
	const q = `SELECT id, product_id, quantity, session_id, status, expires_at, created_at, consumed_at
               FROM holds WHERE id = ?`
	var h model.Hold
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&h.ID, &h.ProductID, &h.Quantity, &h.SessionID, &h.Status, &h.ExpiresAt, &h.CreatedAt, &h.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// LockForTransitionTx acquires an exclusive row lock on the hold and
// returns its current state. Used by both release (§4.1) and
// create_order's consume step (§4.3) so a hold can only be terminally
// transitioned once.
func (r *HoldRepo) LockForTransitionTx(ctx context.Context, tx *sql.Tx, id string) (*model.Hold, error) {
	const q = `SELECT id, product_id, quantity, session_id, status, expires_at, created_at, consumed_at
               FROM holds WHERE id = ? FOR UPDATE`
	var h model.Hold
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&h.ID, &h.ProductID, &h.Quantity, &h.SessionID, &h.Status, &h.ExpiresAt, &h.CreatedAt, &h.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

// MarkConsumedTx transitions a hold from pending to consumed. The caller
// must already hold the row lock and must have verified the hold is
// currently pending and unexpired.
func (r *HoldRepo) MarkConsumedTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	const q = `UPDATE holds SET status = ?, consumed_at = ? WHERE id = ? AND status = ?`
	_, err := tx.ExecContext(ctx, q, model.HoldStatusConsumed, now.UTC(), id, model.HoldStatusPending)
	return err
}

// MarkExpiredTx transitions a hold from pending to expired. Returns the
// quantity that should be returned to the product's available_stock, the
// hold's status prior to this call, and ok=false if the hold was not
// pending (already terminal — a no-op). Callers must inspect priorStatus
// rather than treating every !ok result the same way: a hold that was
// already consumed must never be reported as released.
func (r *HoldRepo) MarkExpiredTx(ctx context.Context, tx *sql.Tx, id string) (quantity uint32, productID uint64, priorStatus string, ok bool, err error) {
	h, err := r.LockForTransitionTx(ctx, tx, id)
	if err != nil {
		return 0, 0, "", false, err
	}
	if h.Status != model.HoldStatusPending {
		return 0, 0, h.Status, false, nil
	}
	const q = `UPDATE holds SET status = ? WHERE id = ? AND status = ?`
	if _, err := tx.ExecContext(ctx, q, model.HoldStatusExpired, id, model.HoldStatusPending); err != nil {
		return 0, 0, h.Status, false, err
	}
	return h.Quantity, h.ProductID, h.Status, true, nil
}

// ExpiredBatch selects up to limit pending holds whose expiry has passed,
// ordered by expires_at ascending, for the Hold Lifecycle Manager's
// periodic sweep. It does not lock rows; each hold is re-checked and
// locked individually by MarkExpiredTx so the sweep never holds more than
// one row lock at a time.
func (r *HoldRepo) ExpiredBatch(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `SELECT id FROM holds WHERE status = ? AND expires_at <= ? ORDER BY expires_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.HoldStatusPending, now.UTC(), limit)
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
