package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/0x377/flashsale-core/internal/model"
)

// IdempotencyRepo implements the locked-incomplete -> completed lifecycle
// described in spec §4.4: a caller first acquires a slot keyed by
// (key, resource_type); if the slot already exists and is completed, the
// stored response is replayed; if it exists and is still locked within the
// contention window, the caller is told to back off; if it exists with a
// different fingerprint, the request is rejected as a key reuse.
type IdempotencyRepo struct {
	db *sql.DB
}

// NewIdempotencyRepo constructs an IdempotencyRepo bound to the given database.
func NewIdempotencyRepo(db *sql.DB) *IdempotencyRepo { return &IdempotencyRepo{db: db} }

// AcquireTx attempts to claim a new idempotency slot. Callers must call
// GetForUpdateTx first to classify an existing row, and only call AcquireTx
// when none exists; it does not itself check for a pre-existing row.
func (r *IdempotencyRepo) AcquireTx(ctx context.Context, tx *sql.Tx, key, resourceType, fingerprint string, now time.Time) error {
	const q = `INSERT INTO idempotency_records (idempotency_key, resource_type, fingerprint, locked_at)
               VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, key, resourceType, fingerprint, now.UTC())
	return err
}

// GetForUpdateTx locks and returns an existing idempotency record, or
// ErrNotFound if no slot has been claimed yet for this key+resource_type.
func (r *IdempotencyRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, key, resourceType string) (*model.IdempotencyRecord, error) {
	const q = `SELECT idempotency_key, resource_type, fingerprint, response_status, response_body, locked_at, completed_at
               FROM idempotency_records WHERE idempotency_key = ? AND resource_type = ? FOR UPDATE`
	var rec model.IdempotencyRecord
	var status sql.NullInt32
	var body []byte
	err := tx.QueryRowContext(ctx, q, key, resourceType).Scan(
		&rec.Key, &rec.ResourceType, &rec.Fingerprint, &status, &body, &rec.LockedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if status.Valid {
		rec.ResponseStatus = int(status.Int32)
	}
	rec.ResponseBody = body
	return &rec, nil
}

// CompleteTx records the final response against an already-claimed slot.
func (r *IdempotencyRepo) CompleteTx(ctx context.Context, tx *sql.Tx, key, resourceType string, status int, body []byte, now time.Time) error {
	const q = `UPDATE idempotency_records
               SET response_status = ?, response_body = ?, completed_at = ?
               WHERE idempotency_key = ? AND resource_type = ?`
	_, err := tx.ExecContext(ctx, q, status, body, now.UTC(), key, resourceType)
	return err
}

// ReleaseTx deletes a locked-incomplete slot, used when a claimed request
// fails before ever reaching CompleteTx (e.g. a panic-free but erroring
// webhook apply step) so a retry with the same key is not stuck waiting out
// the full contention window needlessly. Only removes rows that are still
// incomplete; completed slots are left untouched.
func (r *IdempotencyRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, key, resourceType string) error {
	const q = `DELETE FROM idempotency_records WHERE idempotency_key = ? AND resource_type = ? AND completed_at IS NULL`
	_, err := tx.ExecContext(ctx, q, key, resourceType)
	return err
}

// ReapExpired deletes completed records of resourceType older than olderThan
// and stuck locked-incomplete records older than lockStaleBefore, per the
// per-resource IDEMPOTENCY_TTL_SECONDS table in spec §6. Run outside any
// caller transaction; it never touches rows a concurrent request might still
// be relying on for deduplication.
func (r *IdempotencyRepo) ReapExpired(ctx context.Context, resourceType string, olderThan, lockStaleBefore time.Time) (int64, error) {
	const q = `DELETE FROM idempotency_records
               WHERE resource_type = ?
                 AND (
                   (completed_at IS NOT NULL AND completed_at < ?)
                   OR (completed_at IS NULL AND locked_at < ?)
                 )`
	res, err := r.db.ExecContext(ctx, q, resourceType, olderThan.UTC(), lockStaleBefore.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
