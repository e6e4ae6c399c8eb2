// Package reservation implements the Stock Reservation Engine: atomic hold
// creation and release with per-product serialization. Grounded on the
// teacher's customer_reservation.go HoldSeats handler, generalized from
// per-seat locking to a single product row lock guarding a quantity
// counter, and lifted so the transaction boundary lives here rather than on
// entity methods (per the per-row-transaction redesign note).
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/repository"
	"github.com/0x377/flashsale-core/internal/retry"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductInactive     = errors.New("product inactive")
	ErrProductMissing      = errors.New("product missing")
	ErrHoldAlreadyConsumed = errors.New("hold already consumed")
)

// ProductStore is the narrow view of the product repository the engine
// depends on, grounded on *repository.ProductRepo but expressed as an
// interface so tests can supply an in-memory fake in place of a live
// database.
type ProductStore interface {
	LockForReserveTx(ctx context.Context, tx *sql.Tx, productID uint64) (*model.Product, error)
	DecrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error
	IncrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error
}

// HoldStore is the narrow view of the hold repository the engine depends on.
type HoldStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error
	MarkExpiredTx(ctx context.Context, tx *sql.Tx, id string) (quantity uint32, productID uint64, priorStatus string, ok bool, err error)
}

// CacheInvalidator is the one cache operation the engine drives: every
// committed write that changes available_stock invalidates the cached read.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, productID uint64)
}

// Engine implements reserve/release against a product's stock counter.
type Engine struct {
	db       *sql.DB
	products ProductStore
	holds    HoldStore
	cache    CacheInvalidator
	cfg      config.Config
}

// New constructs an Engine.
func New(db *sql.DB, products ProductStore, holds HoldStore, stockCache CacheInvalidator, cfg config.Config) *Engine {
	return &Engine{db: db, products: products, holds: holds, cache: stockCache, cfg: cfg}
}

func (e *Engine) retryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: e.cfg.DeadlockRetries, MinBackoff: e.cfg.DeadlockBackoffMin}
}

// Reserve creates a pending hold against a product, decrementing
// available_stock in the same transaction as the hold insert. On any
// failure no state change is observable: the transaction is rolled back.
func (e *Engine) Reserve(ctx context.Context, productID uint64, quantity uint32, sessionID *string) (*model.Hold, error) {
	var hold *model.Hold

	err := retry.Do(ctx, e.retryPolicy(), func(ctx context.Context) error {
		hold = nil
		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		product, err := e.products.LockForReserveTx(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !product.Active {
			return ErrProductInactive
		}
		if product.AvailableStock < quantity {
			return ErrInsufficientStock
		}
		if err := e.products.DecrementAvailableTx(ctx, tx, productID, quantity); err != nil {
			return err
		}

		now := time.Now().UTC()
		h := model.Hold{
			ID:        uuid.NewString(),
			ProductID: productID,
			Quantity:  quantity,
			SessionID: sessionID,
			Status:    model.HoldStatusPending,
			ExpiresAt: now.Add(e.cfg.HoldTTL),
			CreatedAt: now,
		}
		if err := e.holds.CreateTx(ctx, tx, h); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		hold = &h
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.cache.Invalidate(ctx, productID)
	return hold, nil
}

// Release marks a pending hold expired and returns its quantity to the
// product's available_stock. It is idempotent: releasing an already
// expired/released hold is a no-op that reports success. Releasing a hold
// that has already been consumed by an order is NOT a no-op: it returns
// ErrHoldAlreadyConsumed so the caller can surface spec.md §6's documented
// 422 distinct from the 200 idempotent case.
func (e *Engine) Release(ctx context.Context, holdID string) (released bool, err error) {
	var productID uint64

	retryErr := retry.Do(ctx, e.retryPolicy(), func(ctx context.Context) error {
		released = false
		tx, txErr := e.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		quantity, pid, priorStatus, ok, markErr := e.holds.MarkExpiredTx(ctx, tx, holdID)
		if markErr != nil {
			if errors.Is(markErr, repository.ErrNotFound) {
				return repository.ErrNotFound
			}
			return markErr
		}
		if !ok {
			// Either already expired (idempotent no-op) or already consumed
			// (must be reported distinctly, never silently "released").
			if commitErr := tx.Commit(); commitErr != nil {
				return commitErr
			}
			committed = true
			if priorStatus == model.HoldStatusConsumed {
				return ErrHoldAlreadyConsumed
			}
			return nil
		}

		if err := e.products.IncrementAvailableTx(ctx, tx, pid, quantity); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		released = true
		productID = pid
		return nil
	})

	if retryErr != nil {
		return false, retryErr
	}
	if released {
		e.cache.Invalidate(ctx, productID)
	}
	return released, nil
}
