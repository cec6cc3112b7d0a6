package memory

import (
	"sync"

	"github.com/tamshai/gateway/internal/domain/audit"
)

// AuditStore is a bounded in-memory audit store, used in tests and when audit
// output is not configured. Oldest records are dropped at capacity.
type AuditStore struct {
	mu      sync.RWMutex
	records []audit.Record
	maxSize int
}

// Compile-time check that AuditStore implements audit.Store.
var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates an in-memory audit store with the given capacity.
func NewAuditStore(maxSize int) *AuditStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &AuditStore{maxSize: maxSize}
}

// Append stores audit records, evicting the oldest past capacity.
func (s *AuditStore) Append(records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	if over := len(s.records) - s.maxSize; over > 0 {
		s.records = s.records[over:]
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *AuditStore) Close() error { return nil }

// Recent returns up to n most recent records, newest last.
func (s *AuditStore) Recent(n int) []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	result := make([]audit.Record, n)
	copy(result, s.records[len(s.records)-n:])
	return result
}
