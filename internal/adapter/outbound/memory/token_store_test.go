package memory

import (
	"context"
	"testing"
	"time"

	"github.com/tamshai/gateway/internal/domain/audit"
	"github.com/tamshai/gateway/internal/domain/identity"
)

func recordFor(subject string) audit.Record {
	return audit.Record{
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Domain:    "hr",
		Tool:      "list_employees",
		Decision:  audit.DecisionAllow,
	}
}

func TestTokenStore_ListAndRevoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTokenStore([]*identity.Token{
		{Hash: "$argon2id$h1", Subject: "u-1", Username: "asha", Roles: []string{"employee"}},
		{Hash: "$argon2id$h2", Subject: "u-2", Username: "femi", Roles: []string{"hr-read"}},
	})

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens() error: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("len(tokens) = %d, want 2", len(tokens))
	}

	// Mutating a listed token must not write through to the store.
	tokens[0].Revoked = true
	fresh, _ := store.ListTokens(ctx)
	if fresh[0].Revoked {
		t.Error("ListTokens() returned aliased tokens")
	}

	if !store.Revoke("$argon2id$h2") {
		t.Error("Revoke() = false for known hash")
	}
	if store.Revoke("$argon2id$unknown") {
		t.Error("Revoke() = true for unknown hash")
	}

	fresh, _ = store.ListTokens(ctx)
	for _, tok := range fresh {
		if tok.Hash == "$argon2id$h2" && !tok.Revoked {
			t.Error("Revoke() did not persist")
		}
	}
}

func TestAuditStoreBounded(t *testing.T) {
	t.Parallel()

	store := NewAuditStore(2)
	for _, subject := range []string{"a", "b", "c"} {
		if err := store.Append(recordFor(subject)); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	recent := store.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(recent))
	}
	if recent[0].Subject != "b" || recent[1].Subject != "c" {
		t.Errorf("Recent() = %v, want oldest evicted", recent)
	}
}
