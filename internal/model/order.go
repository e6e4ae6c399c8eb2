package model

import "time"

// Order statuses.  pending is the only non-terminal state; paid, failed and
// cancelled are all absorbing.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// Order is a 1:1 conversion of a consumed Hold.  Quantity and UnitPriceCents
// are value-snapshots taken at order-creation time, not a live link back to
// the product row.
//
// Fields:
//
//	ID                – opaque UUID identifying the order.
//	ProductID         – product.
//	HoldID            – the single hold this order was created from.
//	Quantity          – snapshotted from the hold.
//	UnitPriceCents    – snapshotted from the product at hold-read time.
//	TotalAmountCents  – Quantity * UnitPriceCents.
//	Status            – pending, paid, failed or cancelled.
//	CustomerEmail     – optional, accepted by the API, not load-bearing for any invariant.
//	CustomerDetails   – optional free-form JSON blob, same caveat as CustomerEmail.
//	PaymentReference  – set once a success webhook is applied.
//	PaidAt            – set on pending -> paid.
//	CancelledAt       – set on pending -> failed or pending -> cancelled.
//	CreatedAt         – creation timestamp.
type Order struct {
	ID               string     // orders.id
	ProductID        uint64     // orders.product_id
	HoldID           string     // orders.hold_id
	Quantity         uint32     // orders.quantity
	UnitPriceCents   uint32     // orders.unit_price_cents
	TotalAmountCents uint32     // orders.total_amount_cents
	Status           string     // orders.status
	CustomerEmail    *string    // orders.customer_email (nullable)
	CustomerDetails  *string    // orders.customer_details (nullable, JSON)
	PaymentReference *string    // orders.payment_reference (nullable)
	PaidAt           *time.Time // orders.paid_at (nullable)
	CancelledAt      *time.Time // orders.cancelled_at (nullable)
	CreatedAt        time.Time  // orders.created_at
}

// IsTerminal reports whether no further transition is possible.
func (o Order) IsTerminal() bool {
	return o.Status != OrderStatusPending
}
