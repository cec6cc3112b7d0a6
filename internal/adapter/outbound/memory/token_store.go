package memory

import (
	"context"
	"sync"

	"github.com/tamshai/gateway/internal/domain/identity"
)

// TokenStore is an in-memory bearer token store, seeded from config at boot.
type TokenStore struct {
	mu     sync.RWMutex
	tokens []*identity.Token
}

// Compile-time check that TokenStore implements identity.TokenStore.
var _ identity.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a token store seeded with the given tokens.
func NewTokenStore(tokens []*identity.Token) *TokenStore {
	s := &TokenStore{}
	for _, t := range tokens {
		copied := *t
		s.tokens = append(s.tokens, &copied)
	}
	return s
}

// ListTokens returns all provisioned tokens.
func (s *TokenStore) ListTokens(ctx context.Context) ([]*identity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*identity.Token, len(s.tokens))
	for i, t := range s.tokens {
		copied := *t
		result[i] = &copied
	}
	return result, nil
}

// Revoke marks the token with the given hash as revoked.
func (s *TokenStore) Revoke(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Hash == hash {
			t.Revoked = true
			return true
		}
	}
	return false
}
