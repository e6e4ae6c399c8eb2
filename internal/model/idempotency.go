package model

import "time"

// Resource types an IdempotencyRecord can be scoped to.  The (key,
// resource_type) pair is the uniqueness constraint; the same client key may
// be reused across resource types without colliding.
const (
	IdempotencyResourceWebhook = "payment_webhook"
	IdempotencyResourceOrder   = "order"
	IdempotencyResourceHold    = "hold"
)

// IdempotencyRecord guarantees that repeated invocations of a mutating
// operation carrying the same client key have the effect of a single
// invocation.  It is created locked-but-incomplete, and becomes completed
// once the operation it guards has actually run to a cacheable result.
//
// Fields:
//
//	Key            – client-supplied opaque token (header value).
//	ResourceType   – one of the IdempotencyResource* constants.
//	Fingerprint    – hash of method+path+body; detects key reuse across bodies.
//	ResponseStatus – HTTP status to replay on a duplicate call.
//	ResponseBody   – body to replay on a duplicate call.
//	LockedAt       – when the incomplete slot was acquired.
//	CompletedAt    – set once the guarded operation finished; nil while locked.
type IdempotencyRecord struct {
	Key            string     // idempotency_records.key
	ResourceType   string     // idempotency_records.resource_type
	Fingerprint    string     // idempotency_records.fingerprint
	ResponseStatus int        // idempotency_records.response_status
	ResponseBody   []byte     // idempotency_records.response_body
	LockedAt       time.Time  // idempotency_records.locked_at
	CompletedAt    *time.Time // idempotency_records.completed_at (nullable)
}

// IsCompleted reports whether a cached response is available for replay.
func (r IdempotencyRecord) IsCompleted() bool {
	return r.CompletedAt != nil
}
