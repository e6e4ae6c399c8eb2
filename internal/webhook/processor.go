// Package webhook implements the Idempotent Webhook Processor: exactly-once
// settlement of payment-provider callbacks, including deferred processing
// of callbacks that precede order creation. Grounded on the teacher's
// transaction-scoped mutation style and on other_examples's
// payments-consumer retry-then-dead-letter shape, reimplemented here as a
// synchronous in-request retry (not AMQP redelivery), since the core treats
// the webhook HTTP call itself as the unit of work.
package webhook

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/queue"
	"github.com/0x377/flashsale-core/internal/repository"
	"github.com/0x377/flashsale-core/internal/retry"
)

// Outcome classifies how a webhook call was handled.
type Outcome string

const (
	Accepted         Outcome = "accepted"
	Deduplicated     Outcome = "deduplicated"
	Deferred         Outcome = "deferred"
	ValidationFailed Outcome = "validation_failed"
	SignatureInvalid Outcome = "signature_invalid"
	Conflict         Outcome = "conflict"
)

const resourceTypeWebhook = "payment_webhook"

const webhookMethodAndPath = "POST:/payments/webhook:"

// Result is the outcome of a Process call, including the exact response
// body and status the HTTP adapter should return to the caller — either
// freshly computed or replayed from a prior completed invocation.
type Result struct {
	Outcome    Outcome
	HTTPStatus int
	Body       []byte
}

// Publisher fans out settlement events after an order reaches a terminal
// state. Settlement publication failures never roll back the already
// committed order transition.
type Publisher interface {
	PublishOrderSettled(ctx context.Context, ev queue.OrderSettledEvent) error
}

// OrderStore is the narrow view of the order repository the processor
// depends on.
type OrderStore interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error)
	MarkPaidTx(ctx context.Context, tx *sql.Tx, id, paymentReference string) (bool, error)
	MarkFailedTx(ctx context.Context, tx *sql.Tx, id string) (bool, error)
}

// HoldStore is the narrow view of the hold repository the processor's
// defensive failed-order release path depends on.
type HoldStore interface {
	MarkExpiredTx(ctx context.Context, tx *sql.Tx, id string) (quantity uint32, productID uint64, priorStatus string, ok bool, err error)
}

// ProductStore is the narrow view of the product repository the processor
// depends on.
type ProductStore interface {
	IncrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error
}

// IdempotencyStore is the narrow view of the idempotency repository the
// processor depends on.
type IdempotencyStore interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, key, resourceType string) (*model.IdempotencyRecord, error)
	AcquireTx(ctx context.Context, tx *sql.Tx, key, resourceType, fingerprint string, now time.Time) error
	CompleteTx(ctx context.Context, tx *sql.Tx, key, resourceType string, status int, body []byte, now time.Time) error
	ReleaseTx(ctx context.Context, tx *sql.Tx, key, resourceType string) error
}

// DeferredWebhookStore is the narrow view of the deferred-webhook
// repository the processor depends on.
type DeferredWebhookStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, orderID, idempotencyKey string, payload []byte) error
}

// FailedWebhookStore is the narrow view of the dead-letter repository the
// processor depends on.
type FailedWebhookStore interface {
	Insert(ctx context.Context, orderID, idempotencyKey string, payload []byte, lastErr string, attempts int) error
}

// Processor implements process() from spec.md §4.4.
type Processor struct {
	db          *sql.DB
	orders      OrderStore
	holds       HoldStore
	products    ProductStore
	idempotency IdempotencyStore
	deferred    DeferredWebhookStore
	failed      FailedWebhookStore
	publisher   Publisher
	cfg         config.Config
}

// New constructs a Processor.
func New(
	db *sql.DB,
	orders OrderStore,
	holds HoldStore,
	products ProductStore,
	idempotency IdempotencyStore,
	deferred DeferredWebhookStore,
	failed FailedWebhookStore,
	publisher Publisher,
	cfg config.Config,
) *Processor {
	return &Processor{
		db: db, orders: orders, holds: holds, products: products,
		idempotency: idempotency, deferred: deferred, failed: failed,
		publisher: publisher, cfg: cfg,
	}
}

func (p *Processor) retryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: p.cfg.DeadlockRetries, MinBackoff: p.cfg.DeadlockBackoffMin}
}

func fingerprintOf(rawBody []byte) string {
	sum := sha256.Sum256(append([]byte(webhookMethodAndPath), rawBody...))
	return hex.EncodeToString(sum[:])
}

func jsonBody(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal"}`)
	}
	return b
}

// Process runs the full algorithm of spec.md §4.4 steps 1-6. signatureHex
// and testMode together implement step 1: signature verification is
// skipped in test mode.
func (p *Processor) Process(ctx context.Context, rawBody []byte, idempotencyKey, signatureHex string, testMode bool) (*Result, error) {
	if idempotencyKey == "" {
		return &Result{Outcome: ValidationFailed, HTTPStatus: 422, Body: jsonBody(map[string]string{"error": "missing idempotency key"})}, nil
	}
	if !testMode && !verifySignature([]byte(p.cfg.WebhookHMACSecret), rawBody, signatureHex) {
		return &Result{Outcome: SignatureInvalid, HTTPStatus: 401, Body: jsonBody(map[string]string{"error": "invalid signature"})}, nil
	}

	var payload Payload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return &Result{Outcome: ValidationFailed, HTTPStatus: 422, Body: jsonBody(map[string]string{"error": "malformed payload"})}, nil
	}
	if err := ValidatePayload(payload); err != nil {
		return &Result{Outcome: ValidationFailed, HTTPStatus: 422, Body: jsonBody(map[string]string{"error": err.Error()})}, nil
	}

	fingerprint := fingerprintOf(rawBody)

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, settleEvent, err := p.attempt(ctx, idempotencyKey, fingerprint, rawBody, payload)
		if err == nil {
			if settleEvent != nil && p.publisher != nil {
				_ = p.publisher.PublishOrderSettled(ctx, *settleEvent)
			}
			return result, nil
		}
		lastErr = err
	}

	_ = p.failed.Insert(ctx, payload.OrderID, idempotencyKey, rawBody, lastErr.Error(), maxAttempts)
	_ = p.releaseLock(ctx, idempotencyKey)
	return nil, lastErr
}

func (p *Processor) releaseLock(ctx context.Context, key string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := p.idempotency.ReleaseTx(ctx, tx, key, resourceTypeWebhook); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// attempt runs one full pass of the algorithm inside a single transaction,
// retried on deadlock. A non-nil error here means a transient database
// failure, distinct from a business outcome (which is always returned via
// Result with a nil error).
func (p *Processor) attempt(ctx context.Context, key, fingerprint string, rawBody []byte, payload Payload) (*Result, *queue.OrderSettledEvent, error) {
	var result *Result
	var settleEvent *queue.OrderSettledEvent

	err := retry.Do(ctx, p.retryPolicy(), func(ctx context.Context) error {
		result = nil
		settleEvent = nil

		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		now := time.Now().UTC()

		rec, err := p.idempotency.GetForUpdateTx(ctx, tx, key, resourceTypeWebhook)
		switch {
		case err == nil && rec.CompletedAt != nil && rec.Fingerprint != fingerprint:
			result = &Result{Outcome: Conflict, HTTPStatus: 409, Body: jsonBody(map[string]string{"error": repository.ErrFingerprintMismatch.Error()})}
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			return nil

		case err == nil && rec.CompletedAt != nil:
			result = &Result{Outcome: Deduplicated, HTTPStatus: rec.ResponseStatus, Body: rec.ResponseBody}
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			return nil

		case err == nil && now.Sub(rec.LockedAt) < p.cfg.IdempotencyContention:
			result = &Result{Outcome: Conflict, HTTPStatus: 409, Body: jsonBody(map[string]string{"error": repository.ErrLockContended.Error()})}
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			return nil

		case err == nil:
			// Locked-incomplete and past the contention window: a prior
			// attempt for this key never completed. Reclaim the slot.

		case errors.Is(err, repository.ErrNotFound):
			if err := p.idempotency.AcquireTx(ctx, tx, key, resourceTypeWebhook, fingerprint, now); err != nil {
				return err
			}

		default:
			return err
		}

		order, err := p.orders.GetForUpdateTx(ctx, tx, payload.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			if err := p.deferred.InsertTx(ctx, tx, payload.OrderID, key, rawBody); err != nil {
				return err
			}
			// Deliberately not completed: a later replay (order §4.3 step 6)
			// must re-enter this algorithm from scratch once the order
			// exists, not replay a cached "deferred" response forever.
			if err := p.idempotency.ReleaseTx(ctx, tx, key, resourceTypeWebhook); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			result = &Result{Outcome: Deferred, HTTPStatus: 202, Body: jsonBody(map[string]any{"processed": false, "order_id": payload.OrderID, "order_status": "deferred"})}
			return nil
		}
		if err != nil {
			return err
		}

		outcome, httpStatus, body, evt, err := p.applyOutcome(ctx, tx, order, payload, now)
		if err != nil {
			return err
		}

		if err := p.idempotency.CompleteTx(ctx, tx, key, resourceTypeWebhook, httpStatus, body, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		result = &Result{Outcome: outcome, HTTPStatus: httpStatus, Body: body}
		settleEvent = evt
		return nil
	})

	return result, settleEvent, err
}

// applyOutcome implements spec.md §4.4 step 5 under the order row lock
// already held by the caller.
func (p *Processor) applyOutcome(ctx context.Context, tx *sql.Tx, order *model.Order, payload Payload, now time.Time) (Outcome, int, []byte, *queue.OrderSettledEvent, error) {
	switch payload.Status {
	case "success":
		if order.Status == model.OrderStatusPaid {
			if order.PaymentReference != nil && *order.PaymentReference == payload.PaymentReference {
				body := jsonBody(map[string]any{"processed": true, "order_id": order.ID, "order_status": order.Status})
				return Accepted, 200, body, nil, nil
			}
			body := jsonBody(map[string]string{"error": "order already paid with a different payment reference"})
			return Conflict, 409, body, nil, nil
		}
		if order.Status != model.OrderStatusPending {
			body := jsonBody(map[string]string{"error": repository.ErrAlreadyTerminal.Error()})
			return Conflict, 409, body, nil, nil
		}

		ok, err := p.orders.MarkPaidTx(ctx, tx, order.ID, payload.PaymentReference)
		if err != nil {
			return "", 0, nil, nil, err
		}
		status := model.OrderStatusPending
		if ok {
			status = model.OrderStatusPaid
		}
		body := jsonBody(map[string]any{"processed": true, "order_id": order.ID, "order_status": status})
		evt := &queue.OrderSettledEvent{
			OrderID: order.ID, ProductID: order.ProductID, Quantity: order.Quantity,
			TotalAmountCents: order.TotalAmountCents, Status: status,
			PaymentReference: payload.PaymentReference, SettledAt: now.Format(time.RFC3339),
		}
		return Accepted, 200, body, evt, nil

	case "failed":
		if order.Status != model.OrderStatusPending {
			body := jsonBody(map[string]any{"processed": true, "order_id": order.ID, "order_status": order.Status})
			return Accepted, 200, body, nil, nil
		}

		ok, err := p.orders.MarkFailedTx(ctx, tx, order.ID)
		if err != nil {
			return "", 0, nil, nil, err
		}

		// Defensive branch retained per §9: a failed order should never
		// still own a pending hold at this point (order creation already
		// consumed it), but the release costs nothing and guards against
		// the invariant being violated upstream.
		if quantity, productID, _, released, err := p.holds.MarkExpiredTx(ctx, tx, order.HoldID); err == nil && released {
			if err := p.products.IncrementAvailableTx(ctx, tx, productID, quantity); err != nil {
				return "", 0, nil, nil, err
			}
		}

		status := model.OrderStatusPending
		if ok {
			status = model.OrderStatusFailed
		}
		body := jsonBody(map[string]any{"processed": true, "order_id": order.ID, "order_status": status})
		evt := &queue.OrderSettledEvent{
			OrderID: order.ID, ProductID: order.ProductID, Quantity: order.Quantity,
			TotalAmountCents: order.TotalAmountCents, Status: status, SettledAt: now.Format(time.RFC3339),
		}
		return Accepted, 200, body, evt, nil
	}

	body := jsonBody(map[string]string{"error": "unrecognized status"})
	return ValidationFailed, 422, body, nil, nil
}
