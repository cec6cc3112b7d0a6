package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tamshai/gateway/internal/domain/identity"
)

// defaultVerifyCacheTTL bounds how long a verified bearer token skips Argon2id
// re-verification. Revocation therefore takes effect within this window.
const defaultVerifyCacheTTL = time.Minute

// IdentityService authenticates bearer tokens against the token store.
// Argon2id verification is deliberately expensive, so successful
// verifications are cached briefly, keyed by a hash of the raw token.
type IdentityService struct {
	store  identity.TokenStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache map[uint64]verifiedToken
}

type verifiedToken struct {
	uc        identity.UserContext
	expiresAt time.Time
}

// IdentityOption configures IdentityService.
type IdentityOption func(*IdentityService)

// WithVerifyCacheTTL sets how long verified tokens are cached.
func WithVerifyCacheTTL(d time.Duration) IdentityOption {
	return func(s *IdentityService) { s.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IdentityOption {
	return func(s *IdentityService) { s.now = now }
}

// NewIdentityService creates an identity service over the given token store.
func NewIdentityService(store identity.TokenStore, logger *slog.Logger, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		store:  store,
		ttl:    defaultVerifyCacheTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
		cache:  make(map[uint64]verifiedToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate resolves a raw bearer token into a UserContext.
// Unknown, expired, and revoked tokens all return ErrInvalidToken; the caller
// learns nothing about which case it hit.
func (s *IdentityService) Authenticate(ctx context.Context, bearer string) (identity.UserContext, error) {
	if bearer == "" {
		return identity.UserContext{}, identity.ErrInvalidToken
	}

	key := xxhash.Sum64String(bearer)
	if uc, ok := s.cachedContext(key); ok {
		return uc, nil
	}

	tokens, err := s.store.ListTokens(ctx)
	if err != nil {
		return identity.UserContext{}, err
	}

	for _, t := range tokens {
		if t.Revoked || t.IsExpired() {
			continue
		}
		match, err := identity.VerifyToken(bearer, t.Hash)
		if err != nil {
			s.logger.Warn("token hash comparison failed", "subject", t.Subject, "error", err)
			continue
		}
		if match {
			uc := t.Context()
			s.cacheContext(key, uc)
			return uc, nil
		}
	}
	return identity.UserContext{}, identity.ErrInvalidToken
}

func (s *IdentityService) cachedContext(key uint64) (identity.UserContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return identity.UserContext{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.cache, key)
		return identity.UserContext{}, false
	}
	return entry.uc, true
}

func (s *IdentityService) cacheContext(key uint64, uc identity.UserContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Opportunistically shed expired entries so the map stays bounded by the
	// number of live tokens.
	now := s.now()
	for k, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, k)
		}
	}
	s.cache[key] = verifiedToken{uc: uc, expiresAt: now.Add(s.ttl)}
}
