// Package lifecycle implements the Hold Lifecycle Manager: a background
// worker that periodically reclaims expired holds and cancels stale
// pending orders. Grounded on seat_hold_repository.go's ExpireHoldsTx loop
// shape and on the periodic-worker pattern used by other_examples's
// HoldExpiryWorker, guarded here by a Redis distributed lock so only one
// running instance sweeps at a time.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/lock"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/reservation"
)

const sweepLockKey = "lock:hold-sweep"
const sweepLockTTL = 5 * time.Minute

// OrderStore is the narrow view of the order repository the sweeper
// depends on.
type OrderStore interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// HoldStore is the narrow view of the hold repository the sweeper depends
// on.
type HoldStore interface {
	ExpiredBatch(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// IdempotencyStore is the narrow view of the idempotency repository the
// sweeper depends on.
type IdempotencyStore interface {
	ReapExpired(ctx context.Context, resourceType string, olderThan, lockStaleBefore time.Time) (int64, error)
}

// ReleaseEngine is the one reservation.Engine operation the sweeper drives.
type ReleaseEngine interface {
	Release(ctx context.Context, holdID string) (bool, error)
}

// CancelMachine is the one order.Machine operation the sweeper drives.
type CancelMachine interface {
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// Sweeper runs the periodic hold-expiry and stale-order-cancellation sweep.
type Sweeper struct {
	rdb         *redis.Client
	orders      OrderStore
	holds       HoldStore
	idempotency IdempotencyStore
	engine      ReleaseEngine
	machine     CancelMachine
	cfg         config.Config
}

// New constructs a Sweeper.
func New(rdb *redis.Client, orders OrderStore, holds HoldStore, idempotency IdempotencyStore, engine ReleaseEngine, machine CancelMachine, cfg config.Config) *Sweeper {
	return &Sweeper{rdb: rdb, orders: orders, holds: holds, idempotency: idempotency, engine: engine, machine: machine, cfg: cfg}
}

// Run blocks on a ticker until ctx is cancelled. Each tick, it attempts to
// acquire the sweep's distributed lock; if some other instance holds it,
// the tick is skipped entirely, never queued. On shutdown, an in-progress
// batch finishes its current hold before the loop exits (the drain window
// spec.md §5 calls for).
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HoldSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.rdb == nil {
		s.sweepHolds(ctx)
		s.sweepStaleOrders(ctx)
		s.reapIdempotencyRecords(ctx)
		return
	}

	l, ok, err := lock.Acquire(ctx, s.rdb, sweepLockKey, sweepLockTTL)
	if err != nil {
		log.Printf("lifecycle: lock acquire failed: %v", err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := l.Release(context.Background()); err != nil {
			log.Printf("lifecycle: lock release failed: %v", err)
		}
	}()

	s.sweepHolds(ctx)
	s.sweepStaleOrders(ctx)
	s.reapIdempotencyRecords(ctx)
}

// sweepHolds implements spec.md §4.2: select up to batch_size expired
// pending holds and release each one. A failure on a single hold is
// logged and does not abort the batch.
func (s *Sweeper) sweepHolds(ctx context.Context) {
	now := time.Now().UTC()
	ids, err := s.holds.ExpiredBatch(ctx, now, s.cfg.HoldSweepBatchSize)
	if err != nil {
		log.Printf("lifecycle: list expired holds failed: %v", err)
		return
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := s.engine.Release(ctx, id); err != nil {
			// A hold that was consumed by an order between the expiry scan
			// and this release attempt is not a sweep failure: create_order
			// won the race and the hold is correctly terminal.
			if errors.Is(err, reservation.ErrHoldAlreadyConsumed) {
				continue
			}
			log.Printf("lifecycle: release hold %s failed: %v", id, err)
		}
	}
}

// sweepStaleOrders cancels pending orders older than PAYMENT_WINDOW_MINUTES,
// the supplemented sweep duty spec.md §6 names via PAYMENT_WINDOW_MINUTES
// but leaves unspecified in §4.2's algorithm.
func (s *Sweeper) sweepStaleOrders(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.PaymentWindow)
	ids, err := s.orders.StalePending(ctx, cutoff, s.cfg.HoldSweepBatchSize)
	if err != nil {
		log.Printf("lifecycle: list stale orders failed: %v", err)
		return
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := s.machine.CancelOrder(ctx, id); err != nil {
			log.Printf("lifecycle: cancel stale order %s failed: %v", id, err)
		}
	}
}

// reapIdempotencyRecords deletes idempotency records past their per-resource
// TTL (spec §6's IDEMPOTENCY_TTL_SECONDS table) and any locked-incomplete
// slot abandoned long enough ago that it can no longer be a live request
// (ten times the contention window, well past any realistic in-flight call).
func (s *Sweeper) reapIdempotencyRecords(ctx context.Context) {
	now := time.Now().UTC()
	staleLockBefore := now.Add(-10 * s.cfg.IdempotencyContention)

	for resourceType, ttl := range map[string]time.Duration{
		model.IdempotencyResourceWebhook: s.cfg.IdempotencyTTLWebhook,
		model.IdempotencyResourceOrder:   s.cfg.IdempotencyTTLOrder,
		model.IdempotencyResourceHold:    s.cfg.IdempotencyTTLHold,
	} {
		n, err := s.idempotency.ReapExpired(ctx, resourceType, now.Add(-ttl), staleLockBefore)
		if err != nil {
			log.Printf("lifecycle: reap idempotency records (%s) failed: %v", resourceType, err)
			continue
		}
		if n > 0 {
			log.Printf("lifecycle: reaped %d expired %s idempotency records", n, resourceType)
		}
	}
}
