// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation/order/webhook use-case packages to distinguish between
// different failure scenarios without inspecting driver-specific errors.
package repository

import "errors"

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyTerminal indicates that a state-owning row (hold or order) has
// already left the state that would make the requested transition valid.
var ErrAlreadyTerminal = errors.New("already in a terminal state")

// ErrFingerprintMismatch indicates that an idempotency key was reused for a
// request whose method+path+body hash differs from the first use.
var ErrFingerprintMismatch = errors.New("idempotency key reused for a different request")

// ErrLockContended indicates that an idempotency slot is locked-incomplete
// and younger than the contention window; the caller should return a
// transient conflict to the client.
var ErrLockContended = errors.New("idempotency slot contended")
