package model

import "time"

// Product is a sellable item with a fixed initial stock budget.  available_stock
// is the authoritative counter of unreserved units; it only ever moves under
// a row lock held by the Stock Reservation Engine or the Hold Lifecycle
// Manager.  initial_stock never changes after creation.
//
// Fields:
//
//	ID              – primary key identifier.
//	Name            – display name.
//	PriceCents      – unit price in cents.
//	InitialStock    – immutable stock budget set at creation.
//	AvailableStock  – units that may still be reserved right now.
//	Active          – whether the product accepts new reservations.
//	CreatedAt       – creation timestamp.
//	UpdatedAt       – last update timestamp.
type Product struct {
	ID             uint64    // products.id
	Name           string    // products.name
	PriceCents     uint32    // products.price_cents
	InitialStock   uint32    // products.initial_stock
	AvailableStock uint32    // products.available_stock
	Active         bool      // products.active
	CreatedAt      time.Time // products.created_at
	UpdatedAt      time.Time // products.updated_at
}
