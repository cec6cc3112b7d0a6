package confirm

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a confirmation id is unknown.
var ErrNotFound = errors.New("confirmation not found")

// ErrNotPending is returned when a confirmation exists but is already in a
// terminal state. Callers surface it identically to ErrNotFound: a resolved
// id behaves as if it no longer exists.
var ErrNotPending = errors.New("confirmation is not pending")

// Store is the keyed confirmation store shared across concurrent requests.
// Resolve is an atomic check-and-set: exactly one caller wins the
// PENDING -> terminal transition, and the transition holds no I/O.
// Implementations: in-memory (default), sqlite (survives restarts).
type Store interface {
	// Create persists a new confirmation in state PENDING.
	Create(ctx context.Context, c *PendingConfirmation) error

	// Get returns a confirmation by id, in whatever state it is.
	// Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*PendingConfirmation, error)

	// Resolve atomically transitions id from PENDING to the given terminal
	// state and returns the stored confirmation. Returns ErrNotFound for
	// unknown ids and ErrNotPending when the state is no longer PENDING.
	Resolve(ctx context.Context, id string, state State) (*PendingConfirmation, error)

	// ListByOwner returns the owner's confirmations still in state PENDING
	// and not past expiry at now.
	ListByOwner(ctx context.Context, subject string, now time.Time) ([]*PendingConfirmation, error)

	// CountPending returns the number of confirmations in state PENDING.
	CountPending(ctx context.Context) (int, error)

	// Sweep removes terminal confirmations and marks+removes expired ones.
	// Purely a memory/space reclamation aid; correctness never depends on it.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
