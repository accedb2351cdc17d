package challenge

import (
	"context"
	"time"

	"github.com/authpay/server/internal/model"
)

// Store is the keyed, time-bounded container for challenge records. The
// contract is backend-independent: the same invariants hold for the memory,
// redis and postgres implementations.
//
// All mutations on the same id are atomic with respect to concurrent
// callers. In particular MarkVerified is an at-most-once transition: under
// any interleaving exactly one caller succeeds, and the expiry check always
// takes precedence over the already-verified check.
type Store interface {
	// Create assigns a fresh unguessable id, stamps CreatedAt/ExpiresAt and
	// stores the record. It never overwrites an existing id; a collision
	// surfaces as ErrIDCollision.
	Create(ctx context.Context, ch model.Challenge) (model.Challenge, error)

	// Get returns the challenge or ErrNotFound. Expiry is not checked here;
	// an expired but unswept record is still returned.
	Get(ctx context.Context, id string) (model.Challenge, error)

	// MarkVerified atomically transitions the challenge to verified,
	// setting VerifiedAt to now, and returns the updated record. Failure
	// modes, checked in order: ErrNotFound, ErrExpired (the record is
	// deleted), ErrAlreadyVerified.
	MarkVerified(ctx context.Context, id string, now time.Time) (model.Challenge, error)

	// Delete removes the record if present. Deleting an unknown id is not
	// an error.
	Delete(ctx context.Context, id string) error

	// Sweep removes every record with ExpiresAt before now and reports how
	// many were removed. Safe to call concurrently with any operation.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Count returns the number of stored records, expired or not.
	Count(ctx context.Context) (int, error)
}
