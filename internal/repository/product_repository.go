// Package repository contains data access logic for the flash-sale checkout
// core. This file defines the Product repository: the Store's authoritative
// view of a sellable item's stock.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/0x377/flashsale-core/internal/model"
)

// ProductRepo manages persistence for products, including the row-locked
// read-decrement-commit sequence the Stock Reservation Engine relies on.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo constructs a ProductRepo bound to the given database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning the product row and other tables (holds, orders).
func (r *ProductRepo) DB() *sql.DB { return r.db }

// GetByID retrieves a product by its ID without locking. Used by read paths
// (GET /products/{id}) that tolerate a non-authoritative, recently-committed
// view; the reservation decision never uses this method.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	const q = `SELECT id, name, price_cents, initial_stock, available_stock, active, created_at, updated_at
               FROM products WHERE id = ?`
	var p model.Product
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.PriceCents, &p.InitialStock, &p.AvailableStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// LockForReserveTx acquires an exclusive row lock on the product and
// returns its current stock/active state. The caller must hold the
// transaction open until the reservation decision (decrement or fail) is
// committed or rolled back, so that concurrent reservations for the same
// product serialize on this lock. Mirrors the SELECT ... FOR UPDATE idiom
// the teacher's customer handler used inline on show_seats, lifted here into
// the repository layer.
func (r *ProductRepo) LockForReserveTx(ctx context.Context, tx *sql.Tx, productID uint64) (*model.Product, error) {
	const q = `SELECT id, name, price_cents, initial_stock, available_stock, active, created_at, updated_at
               FROM products WHERE id = ? FOR UPDATE`
	var p model.Product
	err := tx.QueryRowContext(ctx, q, productID).Scan(
		&p.ID, &p.Name, &p.PriceCents, &p.InitialStock, &p.AvailableStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDTx reads a product within an existing transaction without taking a
// row lock, used by the Order State Machine to snapshot the unit price at
// order-creation time without serializing against the reservation engine.
func (r *ProductRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Product, error) {
	const q = `SELECT id, name, price_cents, initial_stock, available_stock, active, created_at, updated_at
               FROM products WHERE id = ?`
	var p model.Product
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.PriceCents, &p.InitialStock, &p.AvailableStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DecrementAvailableTx decrements available_stock by quantity. The caller
// must already hold the row lock from LockForReserveTx and must have
// verified available_stock >= quantity; this method does not re-check.
func (r *ProductRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error {
	const q = `UPDATE products SET available_stock = available_stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, quantity, productID)
	return err
}

// IncrementAvailableTx increments available_stock by quantity, capped so it
// never exceeds initial_stock even if called twice for the same release by
// mistake (the release operation itself is idempotent at the hold level, so
// this is defense in depth rather than a primary safeguard).
func (r *ProductRepo) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error {
	const q = `UPDATE products
               SET available_stock = LEAST(initial_stock, available_stock + ?), updated_at = CURRENT_TIMESTAMP
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, quantity, productID)
	return err
}
