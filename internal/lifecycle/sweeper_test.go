package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/reservation"
)

type fakeHoldStore struct {
	expired []string
}

func (f *fakeHoldStore) ExpiredBatch(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return f.expired, nil
}

type fakeOrderStore struct {
	stale []string
}

func (f *fakeOrderStore) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return f.stale, nil
}

type fakeIdempotencyStore struct {
	calls []string
}

func (f *fakeIdempotencyStore) ReapExpired(ctx context.Context, resourceType string, olderThan, lockStaleBefore time.Time) (int64, error) {
	f.calls = append(f.calls, resourceType)
	return 0, nil
}

type fakeEngine struct {
	released     []string
	consumedIDs  map[string]bool
	releaseCalls int
}

func (f *fakeEngine) Release(ctx context.Context, holdID string) (bool, error) {
	f.releaseCalls++
	if f.consumedIDs[holdID] {
		return false, reservation.ErrHoldAlreadyConsumed
	}
	f.released = append(f.released, holdID)
	return true, nil
}

type fakeMachine struct {
	cancelled []string
}

func (f *fakeMachine) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

// S2 (sweep-reclaim): every expired hold the store reports is released
// through the engine, returning its stock.
func TestSweepHolds_ReleasesAllExpiredHolds(t *testing.T) {
	holds := &fakeHoldStore{expired: []string{"h1", "h2", "h3"}}
	engine := &fakeEngine{consumedIDs: map[string]bool{}}
	s := &Sweeper{holds: holds, engine: engine, cfg: config.Config{HoldSweepBatchSize: 100}}

	s.sweepHolds(context.Background())

	if len(engine.released) != 3 {
		t.Fatalf("released = %v, want 3 holds released", engine.released)
	}
}

// A hold consumed by create_order between the expiry scan and the sweep's
// release attempt must not be logged as a sweep failure; it is simply
// skipped.
func TestSweepHolds_SkipsAlreadyConsumedWithoutFailure(t *testing.T) {
	holds := &fakeHoldStore{expired: []string{"h1", "h2"}}
	engine := &fakeEngine{consumedIDs: map[string]bool{"h1": true}}
	s := &Sweeper{holds: holds, engine: engine, cfg: config.Config{HoldSweepBatchSize: 100}}

	s.sweepHolds(context.Background())

	if len(engine.released) != 1 || engine.released[0] != "h2" {
		t.Fatalf("released = %v, want only h2 released", engine.released)
	}
	if engine.releaseCalls != 2 {
		t.Fatalf("releaseCalls = %d, want 2 (both ids attempted)", engine.releaseCalls)
	}
}

func TestSweepStaleOrders_CancelsEachStaleOrder(t *testing.T) {
	orders := &fakeOrderStore{stale: []string{"o1", "o2"}}
	machine := &fakeMachine{}
	s := &Sweeper{orders: orders, machine: machine, cfg: config.Config{HoldSweepBatchSize: 100, PaymentWindow: 30 * time.Minute}}

	s.sweepStaleOrders(context.Background())

	if len(machine.cancelled) != 2 {
		t.Fatalf("cancelled = %v, want 2 stale orders cancelled", machine.cancelled)
	}
}

func TestReapIdempotencyRecords_CoversAllThreeResourceTypes(t *testing.T) {
	idem := &fakeIdempotencyStore{}
	s := &Sweeper{
		idempotency: idem,
		cfg: config.Config{
			IdempotencyTTLWebhook: time.Hour, IdempotencyTTLOrder: time.Hour, IdempotencyTTLHold: time.Hour,
			IdempotencyContention: time.Second,
		},
	}

	s.reapIdempotencyRecords(context.Background())

	if len(idem.calls) != 3 {
		t.Fatalf("reap calls = %v, want 3 (webhook, order, hold)", idem.calls)
	}
}

func TestTick_WithoutRedisRunsAllSweepsDirectly(t *testing.T) {
	holds := &fakeHoldStore{expired: []string{"h1"}}
	orders := &fakeOrderStore{stale: []string{"o1"}}
	engine := &fakeEngine{consumedIDs: map[string]bool{}}
	machine := &fakeMachine{}
	idem := &fakeIdempotencyStore{}
	s := New(nil, orders, holds, idem, engine, machine, config.Config{
		HoldSweepBatchSize: 100, PaymentWindow: 30 * time.Minute,
		IdempotencyTTLWebhook: time.Hour, IdempotencyTTLOrder: time.Hour, IdempotencyTTLHold: time.Hour,
		IdempotencyContention: time.Second,
	})

	s.tick(context.Background())

	if len(engine.released) != 1 || len(machine.cancelled) != 1 || len(idem.calls) != 3 {
		t.Fatalf("tick did not run every sweep: released=%v cancelled=%v reapCalls=%v",
			engine.released, machine.cancelled, idem.calls)
	}
}
