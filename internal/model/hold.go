package model

import "time"

// Hold statuses.  Transitions out of "pending" are terminal — a hold never
// moves between "consumed" and "expired".
const (
	HoldStatusPending  = "pending"
	HoldStatusConsumed = "consumed"
	HoldStatusExpired  = "expired"
)

// Hold is a transient reservation of product stock with a fixed lifetime.
// A pending hold always satisfies ExpiresAt.After(CreatedAt).
//
// Fields:
//
//	ID         – opaque UUID identifying the hold.
//	ProductID  – product the hold reserves stock against.
//	Quantity   – number of units held; always >= 1.
//	SessionID  – optional client-supplied session correlation token.
//	Status     – pending, consumed or expired.
//	ExpiresAt  – wall-clock expiry; only meaningful while status == pending.
//	CreatedAt  – creation timestamp.
//	ConsumedAt – set when an order consumes the hold; nil otherwise.
type Hold struct {
	ID         string     // holds.id
	ProductID  uint64     // holds.product_id
	Quantity   uint32     // holds.quantity
	SessionID  *string    // holds.session_id (nullable)
	Status     string     // holds.status
	ExpiresAt  time.Time  // holds.expires_at
	CreatedAt  time.Time  // holds.created_at
	ConsumedAt *time.Time // holds.consumed_at (nullable)
}

// IsExpired reports whether the hold's lifetime has elapsed as of now.
func (h Hold) IsExpired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// IsPending reports whether the hold can still be consumed or released.
func (h Hold) IsPending() bool {
	return h.Status == HoldStatusPending
}
