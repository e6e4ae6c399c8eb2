package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/0x377/flashsale-core/internal/config"
	"github.com/0x377/flashsale-core/internal/model"
	"github.com/0x377/flashsale-core/internal/repository"
)

type fakeOrders struct {
	byID map[string]*model.Order
}

func (f *fakeOrders) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) MarkPaidTx(ctx context.Context, tx *sql.Tx, id, paymentReference string) (bool, error) {
	o, ok := f.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	o.PaymentReference = &paymentReference
	return true, nil
}

func (f *fakeOrders) MarkFailedTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	o, ok := f.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusFailed
	return true, nil
}

type fakeHolds struct {
	byID map[string]*model.Hold
}

func (f *fakeHolds) MarkExpiredTx(ctx context.Context, tx *sql.Tx, id string) (uint32, uint64, string, bool, error) {
	h, ok := f.byID[id]
	if !ok {
		return 0, 0, "", false, repository.ErrNotFound
	}
	if h.Status != model.HoldStatusPending {
		return 0, 0, h.Status, false, nil
	}
	prior := h.Status
	h.Status = model.HoldStatusExpired
	return h.Quantity, h.ProductID, prior, true, nil
}

type fakeProducts struct {
	incremented map[uint64]uint32
}

func (f *fakeProducts) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, productID uint64, quantity uint32) error {
	if f.incremented == nil {
		f.incremented = map[uint64]uint32{}
	}
	f.incremented[productID] += quantity
	return nil
}

type fakeIdempotency struct {
	records map[string]*model.IdempotencyRecord
}

func key(k, rt string) string { return rt + ":" + k }

func (f *fakeIdempotency) GetForUpdateTx(ctx context.Context, tx *sql.Tx, k, resourceType string) (*model.IdempotencyRecord, error) {
	rec, ok := f.records[key(k, resourceType)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeIdempotency) AcquireTx(ctx context.Context, tx *sql.Tx, k, resourceType, fingerprint string, now time.Time) error {
	if f.records == nil {
		f.records = map[string]*model.IdempotencyRecord{}
	}
	f.records[key(k, resourceType)] = &model.IdempotencyRecord{
		Key: k, ResourceType: resourceType, Fingerprint: fingerprint, LockedAt: now,
	}
	return nil
}

func (f *fakeIdempotency) CompleteTx(ctx context.Context, tx *sql.Tx, k, resourceType string, status int, body []byte, now time.Time) error {
	rec, ok := f.records[key(k, resourceType)]
	if !ok {
		return repository.ErrNotFound
	}
	rec.ResponseStatus = status
	rec.ResponseBody = body
	rec.CompletedAt = &now
	return nil
}

func (f *fakeIdempotency) ReleaseTx(ctx context.Context, tx *sql.Tx, k, resourceType string) error {
	rec, ok := f.records[key(k, resourceType)]
	if ok && rec.CompletedAt == nil {
		delete(f.records, key(k, resourceType))
	}
	return nil
}

type fakeDeferred struct {
	inserted []string
}

func (f *fakeDeferred) InsertTx(ctx context.Context, tx *sql.Tx, orderID, idempotencyKey string, payload []byte) error {
	f.inserted = append(f.inserted, orderID)
	return nil
}

type fakeFailed struct {
	inserted int
}

func (f *fakeFailed) Insert(ctx context.Context, orderID, idempotencyKey string, payload []byte, lastErr string, attempts int) error {
	f.inserted++
	return nil
}

const testOrderID = "a1111111-1111-4111-8111-111111111111"

func successPayload(t *testing.T, orderID, paymentRef string) []byte {
	t.Helper()
	p := Payload{
		OrderID: orderID, Status: "success", PaymentReference: paymentRef,
		AmountCents: 1000, Currency: "USD", Timestamp: time.Now(),
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func newTestProcessor(t *testing.T, orders *fakeOrders, holds *fakeHolds, products *fakeProducts, idem *fakeIdempotency, deferred *fakeDeferred, failed *fakeFailed) (*Processor, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cfg := config.Config{DeadlockRetries: 0, DeadlockBackoffMin: time.Millisecond, IdempotencyContention: 10 * time.Second}
	p := New(db, orders, holds, products, idem, deferred, failed, nil, cfg)
	return p, mock, func() { db.Close() }
}

// S3: replaying the identical webhook (same key, same body) a second time
// must not re-apply the transition; the cached response is replayed.
func TestProcess_WebhookIdempotency(t *testing.T) {
	orders := &fakeOrders{byID: map[string]*model.Order{
		testOrderID: {ID: testOrderID, Status: model.OrderStatusPending, ProductID: 1, Quantity: 2, HoldID: "h1"},
	}}
	holds := &fakeHolds{byID: map[string]*model.Hold{}}
	products := &fakeProducts{}
	idem := &fakeIdempotency{}
	p, mock, closeDB := newTestProcessor(t, orders, holds, products, idem, &fakeDeferred{}, &fakeFailed{})
	defer closeDB()

	body := successPayload(t, testOrderID, "ref-1")

	mock.ExpectBegin()
	mock.ExpectCommit()
	r1, err := p.Process(context.Background(), body, "key-1", "", true)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if r1.Outcome != Accepted || orders.byID[testOrderID].Status != model.OrderStatusPaid {
		t.Fatalf("first call outcome = %v, order status = %v", r1.Outcome, orders.byID[testOrderID].Status)
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	r2, err := p.Process(context.Background(), body, "key-1", "", true)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if r2.Outcome != Deduplicated {
		t.Fatalf("second call outcome = %v, want Deduplicated", r2.Outcome)
	}
	if string(r2.Body) != string(r1.Body) {
		t.Fatalf("replayed body = %s, want %s", r2.Body, r1.Body)
	}
}

// S5: reusing the same idempotency key with a different payload must be
// rejected as a conflict, and the original order's completed state must be
// left untouched.
func TestProcess_DuplicateKeyDifferentPayloadConflicts(t *testing.T) {
	orders := &fakeOrders{byID: map[string]*model.Order{
		testOrderID: {ID: testOrderID, Status: model.OrderStatusPending, ProductID: 1, Quantity: 2, HoldID: "h1"},
	}}
	holds := &fakeHolds{byID: map[string]*model.Hold{}}
	products := &fakeProducts{}
	idem := &fakeIdempotency{}
	p, mock, closeDB := newTestProcessor(t, orders, holds, products, idem, &fakeDeferred{}, &fakeFailed{})
	defer closeDB()

	body1 := successPayload(t, testOrderID, "ref-1")
	mock.ExpectBegin()
	mock.ExpectCommit()
	if _, err := p.Process(context.Background(), body1, "key-1", "", true); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	body2 := successPayload(t, testOrderID, "ref-2")
	mock.ExpectBegin()
	mock.ExpectCommit()
	r2, err := p.Process(context.Background(), body2, "key-1", "", true)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if r2.Outcome != Conflict || r2.HTTPStatus != 409 {
		t.Fatalf("conflicting-payload outcome = %v/%d, want Conflict/409", r2.Outcome, r2.HTTPStatus)
	}
	if *orders.byID[testOrderID].PaymentReference != "ref-1" {
		t.Fatalf("order payment reference mutated by rejected duplicate: %s", *orders.byID[testOrderID].PaymentReference)
	}
}

// S4: a webhook for an order that does not exist yet is parked rather than
// rejected, and its idempotency slot is released (not completed) so a
// later replay re-enters the full algorithm.
func TestProcess_DefersWebhookForUnknownOrder(t *testing.T) {
	orders := &fakeOrders{byID: map[string]*model.Order{}}
	holds := &fakeHolds{byID: map[string]*model.Hold{}}
	products := &fakeProducts{}
	idem := &fakeIdempotency{}
	deferred := &fakeDeferred{}
	p, mock, closeDB := newTestProcessor(t, orders, holds, products, idem, deferred, &fakeFailed{})
	defer closeDB()

	body := successPayload(t, testOrderID, "ref-1")
	mock.ExpectBegin()
	mock.ExpectCommit()
	r, err := p.Process(context.Background(), body, "key-1", "", true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Outcome != Deferred || r.HTTPStatus != 202 {
		t.Fatalf("outcome = %v/%d, want Deferred/202", r.Outcome, r.HTTPStatus)
	}
	if len(deferred.inserted) != 1 || deferred.inserted[0] != testOrderID {
		t.Fatalf("deferred.inserted = %v, want [%s]", deferred.inserted, testOrderID)
	}
	if rec, ok := idem.records[key("key-1", resourceTypeWebhook)]; ok {
		t.Fatalf("idempotency slot left behind after defer: %+v", rec)
	}
}

func TestProcess_RejectsMalformedPayload(t *testing.T) {
	p, mock, closeDB := newTestProcessor(t, &fakeOrders{}, &fakeHolds{}, &fakeProducts{}, &fakeIdempotency{}, &fakeDeferred{}, &fakeFailed{})
	defer closeDB()
	_ = mock

	r, err := p.Process(context.Background(), []byte(`not json`), "key-1", "", true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Outcome != ValidationFailed || r.HTTPStatus != 422 {
		t.Fatalf("outcome = %v/%d, want ValidationFailed/422", r.Outcome, r.HTTPStatus)
	}
}

func TestProcess_RejectsMissingIdempotencyKey(t *testing.T) {
	p, mock, closeDB := newTestProcessor(t, &fakeOrders{}, &fakeHolds{}, &fakeProducts{}, &fakeIdempotency{}, &fakeDeferred{}, &fakeFailed{})
	defer closeDB()
	_ = mock

	r, err := p.Process(context.Background(), successPayload(t, testOrderID, "ref-1"), "", "", true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Outcome != ValidationFailed || r.HTTPStatus != 422 {
		t.Fatalf("outcome = %v/%d, want ValidationFailed/422", r.Outcome, r.HTTPStatus)
	}
}
