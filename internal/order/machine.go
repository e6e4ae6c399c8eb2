// Package order implements the Order State Machine: creating an order from
// a hold, and replaying any webhooks that arrived before the order existed.
// Grounded on the teacher's ConfirmSeats handler (consume-then-insert under
// a single transaction) and show_repository.go's conditional-UPDATE idiom,
// generalized from seat confirmation to hold consumption.
package order

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
	"github.com/0x377/flashsale-core/internal/webhook"
)

var (
	ErrHoldMissing         = errors.New("hold missing")
	ErrHoldExpired         = errors.New("hold expired")
	ErrHoldAlreadyConsumed = errors.New("hold already consumed")
)

// ProductStore is the narrow view of the product repository the machine
// depends on.
type ProductStore interface {
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Product, error)
}

// HoldStore is the narrow view of the hold repository the machine depends
// on.
type HoldStore interface {
	LockForTransitionTx(ctx context.Context, tx *sql.Tx, id string) (*model.Hold, error)
	MarkConsumedTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error
}

// OrderStore is the narrow view of the order repository the machine
// depends on.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o model.Order) error
	MarkCancelledTx(ctx context.Context, tx *sql.Tx, id string) (bool, error)
}

// DeferredWebhookStore is the narrow view of the deferred-webhook
// repository the machine depends on.
type DeferredWebhookStore interface {
	ListByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) ([]model.DeferredWebhook, error)
	DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error
}

// WebhookReplayer is the one webhook.Processor operation the machine drives
// when replaying callbacks that arrived before an order existed.
type WebhookReplayer interface {
	Process(ctx context.Context, rawBody []byte, idempotencyKey, signatureHex string, testMode bool) (*webhook.Result, error)
}

// Machine implements create_order and the deferred-webhook replay fan-out
// that follows it.
type Machine struct {
	db        *sql.DB
	products  ProductStore
	holds     HoldStore
	orders    OrderStore
	deferred  DeferredWebhookStore
	processor WebhookReplayer
	cfg       config.Config
}

// New constructs a Machine.
func New(
	db *sql.DB,
	products ProductStore,
	holds HoldStore,
	orders OrderStore,
	deferred DeferredWebhookStore,
	processor WebhookReplayer,
	cfg config.Config,
) *Machine {
	return &Machine{db: db, products: products, holds: holds, orders: orders, deferred: deferred, processor: processor, cfg: cfg}
}

func (m *Machine) retryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: m.cfg.DeadlockRetries, MinBackoff: m.cfg.DeadlockBackoffMin}
}

// CreateOrder implements spec.md §4.3's create_order operation.
func (m *Machine) CreateOrder(ctx context.Context, holdID string, customerEmail, customerDetails *string) (*model.Order, error) {
	var created *model.Order

	err := retry.Do(ctx, m.retryPolicy(), func(ctx context.Context) error {
		created = nil
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		hold, err := m.holds.LockForTransitionTx(ctx, tx, holdID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrHoldMissing
			}
			return err
		}
		if hold.Status != model.HoldStatusPending {
			return ErrHoldAlreadyConsumed
		}
		now := time.Now().UTC()
		if !hold.ExpiresAt.After(now) {
			return ErrHoldExpired
		}

		if err := m.holds.MarkConsumedTx(ctx, tx, hold.ID, now); err != nil {
			return err
		}

		product, err := m.products.GetByIDTx(ctx, tx, hold.ProductID)
		if err != nil {
			return err
		}

		o := model.Order{
			ID:               uuid.NewString(),
			ProductID:        hold.ProductID,
			HoldID:           hold.ID,
			Quantity:         hold.Quantity,
			UnitPriceCents:   product.PriceCents,
			TotalAmountCents: product.PriceCents * hold.Quantity,
			Status:           model.OrderStatusPending,
			CustomerEmail:    customerEmail,
			CustomerDetails:  customerDetails,
			CreatedAt:        now,
		}
		if err := m.orders.CreateTx(ctx, tx, o); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		created = &o
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.replayDeferred(ctx, created.ID)
	return created, nil
}

// CancelOrder transitions a pending order to cancelled. Used by the admin
// cancel endpoint and by the lifecycle sweeper's stale-pending-order pass.
// Idempotent: cancelling an already-terminal order is a no-op, matching
// the transition matrix's "any disallowed transition is a no-op" rule.
func (m *Machine) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var cancelled bool
	err := retry.Do(ctx, m.retryPolicy(), func(ctx context.Context) error {
		cancelled = false
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		ok, err := m.orders.MarkCancelledTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		cancelled = ok
		return nil
	})
	return cancelled, err
}

// replayDeferred consults the DeferredWebhook store for entries matching
// the newly created order and replays them through the Webhook Processor
// in received_at order, per spec.md §4.3 step 6. Individual replay
// failures are logged by the processor's own dead-letter path and do not
// block subsequent replays or the caller's response.
func (m *Machine) replayDeferred(ctx context.Context, orderID string) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	entries, err := m.deferred.ListByOrderIDTx(ctx, tx, orderID)
	_ = tx.Rollback()
	if err != nil {
		return
	}

	for _, dw := range entries {
		// testMode=true: the original callback already passed signature
		// verification before it was deferred; replay skips only that
		// step-1 check and re-enters from payload validation onward.
		_, _ = m.processor.Process(ctx, dw.Payload, dw.IdempotencyKey, "", true)

		delTx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			continue
		}
		if err := m.deferred.DeleteTx(ctx, delTx, dw.ID); err != nil {
			_ = delTx.Rollback()
			continue
		}
		_ = delTx.Commit()
	}
}
