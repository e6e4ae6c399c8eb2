package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/repository"
	"github.com/0x377/flashsale-core/internal/webhook"
)

type fakeProducts struct {
	byID map[uint64]*model.Product
}

func (f *fakeProducts) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeHolds struct {
	byID map[string]*model.Hold
}

func (f *fakeHolds) LockForTransitionTx(ctx context.Context, tx *sql.Tx, id string) (*model.Hold, error) {
	h, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (f *fakeHolds) MarkConsumedTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	h, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	h.Status = model.HoldStatusConsumed
	h.ConsumedAt = &now
	return nil
}

type fakeOrders struct {
	created []model.Order
	byID    map[string]*model.Order
}

func (f *fakeOrders) CreateTx(ctx context.Context, tx *sql.Tx, o model.Order) error {
	if f.byID == nil {
		f.byID = map[string]*model.Order{}
	}
	cp := o
	f.created = append(f.created, o)
	f.byID[o.ID] = &cp
	return nil
}

func (f *fakeOrders) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	o, ok := f.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusCancelled
	return true, nil
}

type fakeDeferred struct {
	byOrderID map[string][]model.DeferredWebhook
	deleted   []uint64
}

func (f *fakeDeferred) ListByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) ([]model.DeferredWebhook, error) {
	return f.byOrderID[orderID], nil
}

func (f *fakeDeferred) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeReplayer struct {
	calls []string
}

func (f *fakeReplayer) Process(ctx context.Context, rawBody []byte, idempotencyKey, signatureHex string, testMode bool) (*webhook.Result, error) {
	f.calls = append(f.calls, idempotencyKey)
	return &webhook.Result{Outcome: webhook.Accepted, HTTPStatus: 200, Body: []byte(`{}`)}, nil
}

func newTestMachine(t *testing.T, products *fakeProducts, holds *fakeHolds, orders *fakeOrders, deferred *fakeDeferred, replayer *fakeReplayer) (*Machine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cfg := config.Config{DeadlockRetries: 0, DeadlockBackoffMin: time.Millisecond}
	m := New(db, products, holds, orders, deferred, replayer, cfg)
	return m, mock, func() { db.Close() }
}

const testHoldID = "b2b9a6d0-7c1d-4d2a-9c7a-0e5e6a1b2c3d"

func TestCreateOrder_ConsumesHoldAndReplaysDeferredWebhooks(t *testing.T) {
	future := time.Now().Add(time.Minute)
	holds := &fakeHolds{byID: map[string]*model.Hold{
		testHoldID: {ID: testHoldID, ProductID: 1, Quantity: 2, Status: model.HoldStatusPending, ExpiresAt: future},
	}}
	products := &fakeProducts{byID: map[uint64]*model.Product{1: {ID: 1, PriceCents: 500}}}
	orders := &fakeOrders{}
	deferred := &fakeDeferred{byOrderID: map[string][]model.DeferredWebhook{}}
	replayer := &fakeReplayer{}

	m, mock, closeDB := newTestMachine(t, products, holds, orders, deferred, replayer)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin() // replayDeferred's read-only tx, rolled back after listing
	mock.ExpectRollback()

	o, err := m.CreateOrder(context.Background(), testHoldID, nil, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.TotalAmountCents != 1000 {
		t.Fatalf("total = %d, want 1000", o.TotalAmountCents)
	}
	if holds.byID[testHoldID].Status != model.HoldStatusConsumed {
		t.Fatalf("hold status = %s, want consumed", holds.byID[testHoldID].Status)
	}

	// S4: register a deferred webhook for this order now and replay it
	// through a second machine sharing the same fakes, proving an
	// out-of-order webhook reaches the processor without a second POST.
	deferred.byOrderID[o.ID] = []model.DeferredWebhook{
		{ID: 1, OrderID: o.ID, IdempotencyKey: "key-1", Payload: []byte(`{}`)},
	}
	db2, mock2, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db2.Close()
	mock2.ExpectBegin()
	mock2.ExpectRollback()
	mock2.ExpectBegin()
	mock2.ExpectCommit()
	m2 := New(db2, products, holds, orders, deferred, replayer, config.Config{})
	m2.replayDeferred(context.Background(), o.ID)

	if len(replayer.calls) != 1 || replayer.calls[0] != "key-1" {
		t.Fatalf("replayer calls = %v, want [key-1]", replayer.calls)
	}
	if len(deferred.deleted) != 1 || deferred.deleted[0] != 1 {
		t.Fatalf("deferred.deleted = %v, want [1]", deferred.deleted)
	}
}

func TestCreateOrder_ExpiredHoldRejected(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	holds := &fakeHolds{byID: map[string]*model.Hold{
		testHoldID: {ID: testHoldID, ProductID: 1, Quantity: 1, Status: model.HoldStatusPending, ExpiresAt: past},
	}}
	products := &fakeProducts{byID: map[uint64]*model.Product{1: {ID: 1}}}
	m, mock, closeDB := newTestMachine(t, products, holds, &fakeOrders{}, &fakeDeferred{}, &fakeReplayer{})
	defer closeDB()
	mock.ExpectBegin()
	mock.ExpectRollback()

	if _, err := m.CreateOrder(context.Background(), testHoldID, nil, nil); !errors.Is(err, ErrHoldExpired) {
		t.Fatalf("err = %v, want ErrHoldExpired", err)
	}
}

func TestCreateOrder_AlreadyConsumedHoldRejected(t *testing.T) {
	holds := &fakeHolds{byID: map[string]*model.Hold{
		testHoldID: {ID: testHoldID, ProductID: 1, Quantity: 1, Status: model.HoldStatusConsumed},
	}}
	products := &fakeProducts{byID: map[uint64]*model.Product{1: {ID: 1}}}
	m, mock, closeDB := newTestMachine(t, products, holds, &fakeOrders{}, &fakeDeferred{}, &fakeReplayer{})
	defer closeDB()
	mock.ExpectBegin()
	mock.ExpectRollback()

	if _, err := m.CreateOrder(context.Background(), testHoldID, nil, nil); !errors.Is(err, ErrHoldAlreadyConsumed) {
		t.Fatalf("err = %v, want ErrHoldAlreadyConsumed", err)
	}
}
