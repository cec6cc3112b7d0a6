// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tamshai/gateway/internal/domain/confirm"
)

// ConfirmationStore is the in-memory confirmation store. The per-id state
// transition in Resolve is the gateway's only critical section; it holds no
// I/O and exactly one caller wins the PENDING -> terminal transition.
type ConfirmationStore struct {
	mu            sync.RWMutex
	confirmations map[string]*confirm.PendingConfirmation
}

// Compile-time check that ConfirmationStore implements confirm.Store.
var _ confirm.Store = (*ConfirmationStore)(nil)

// NewConfirmationStore creates an empty in-memory confirmation store.
func NewConfirmationStore() *ConfirmationStore {
	return &ConfirmationStore{
		confirmations: make(map[string]*confirm.PendingConfirmation),
	}
}

// Create stores a new confirmation in state PENDING.
func (s *ConfirmationStore) Create(ctx context.Context, c *confirm.PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneConfirmation(c)
	stored.State = confirm.StatePending
	s.confirmations[c.ID] = stored
	return nil
}

// Get returns a copy of the confirmation by id.
func (s *ConfirmationStore) Get(ctx context.Context, id string) (*confirm.PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.confirmations[id]
	if !ok {
		return nil, confirm.ErrNotFound
	}
	return cloneConfirmation(c), nil
}

// Resolve atomically transitions id from PENDING to the given terminal state.
func (s *ConfirmationStore) Resolve(ctx context.Context, id string, state confirm.State) (*confirm.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.confirmations[id]
	if !ok {
		return nil, confirm.ErrNotFound
	}
	if c.State != confirm.StatePending {
		return nil, confirm.ErrNotPending
	}
	c.State = state
	return cloneConfirmation(c), nil
}

// ListByOwner returns the owner's unexpired PENDING confirmations.
func (s *ConfirmationStore) ListByOwner(ctx context.Context, subject string, now time.Time) ([]*confirm.PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*confirm.PendingConfirmation
	for _, c := range s.confirmations {
		if c.Owner.Subject == subject && c.State == confirm.StatePending && !c.Expired(now) {
			result = append(result, cloneConfirmation(c))
		}
	}
	return result, nil
}

// CountPending returns the number of PENDING confirmations.
func (s *ConfirmationStore) CountPending(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.confirmations {
		if c.State == confirm.StatePending {
			n++
		}
	}
	return n, nil
}

// Sweep removes terminal confirmations and expired pending ones.
func (s *ConfirmationStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.confirmations {
		if c.State != confirm.StatePending || c.Expired(now) {
			delete(s.confirmations, id)
			removed++
		}
	}
	return removed, nil
}

// cloneConfirmation copies a confirmation so callers never share the stored
// struct across the lock boundary.
func cloneConfirmation(c *confirm.PendingConfirmation) *confirm.PendingConfirmation {
	clone := *c
	if c.Preview != nil {
		clone.Preview = make(map[string]any, len(c.Preview))
		for k, v := range c.Preview {
			clone.Preview[k] = v
		}
	}
	if c.Request.Params != nil {
		clone.Request.Params = make(map[string]any, len(c.Request.Params))
		for k, v := range c.Request.Params {
			clone.Request.Params[k] = v
		}
	}
	if c.ApproverRoles != nil {
		clone.ApproverRoles = append([]string(nil), c.ApproverRoles...)
	}
	if c.Owner.Roles != nil {
		clone.Owner.Roles = append([]string(nil), c.Owner.Roles...)
	}
	return &clone
}
