package identity

import (
	"testing"
	"time"
)

func TestUserContext_HasRole(t *testing.T) {
	t.Parallel()

	uc := UserContext{Subject: "u-1", Roles: []string{"hr-read", "finance-read"}}

	if !uc.HasRole("hr-read") {
		t.Error("HasRole(hr-read) = false, want true")
	}
	if uc.HasRole("finance-write") {
		t.Error("HasRole(finance-write) = true, want false")
	}
	if !uc.HasAnyRole("sales-read", "finance-read") {
		t.Error("HasAnyRole() = false, want true")
	}
	if uc.HasAnyRole() {
		t.Error("HasAnyRole() with no args = true, want false")
	}
}

func TestUserContext_RoleList(t *testing.T) {
	t.Parallel()

	uc := UserContext{Roles: []string{"hr-write", "employee", "hr-read"}}
	if got, want := uc.RoleList(), "employee,hr-read,hr-write"; got != want {
		t.Errorf("RoleList() = %q, want %q", got, want)
	}
	// Sorting must not reorder the original slice's observable semantics.
	if uc.Roles[0] != "hr-write" {
		t.Errorf("RoleList() mutated Roles: %v", uc.Roles)
	}
}

func TestToken_IsExpired(t *testing.T) {
	t.Parallel()

	if (&Token{}).IsExpired() {
		t.Error("token with nil ExpiresAt reported expired")
	}

	past := time.Now().UTC().Add(-time.Minute)
	if !(&Token{ExpiresAt: &past}).IsExpired() {
		t.Error("token past expiry not reported expired")
	}

	future := time.Now().UTC().Add(time.Hour)
	if (&Token{ExpiresAt: &future}).IsExpired() {
		t.Error("token before expiry reported expired")
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("tok-secret-123")
	if err != nil {
		t.Fatalf("HashToken() error: %v", err)
	}

	match, err := VerifyToken("tok-secret-123", hash)
	if err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}
	if !match {
		t.Error("VerifyToken() = false for matching token")
	}

	match, err = VerifyToken("tok-wrong", hash)
	if err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}
	if match {
		t.Error("VerifyToken() = true for wrong token")
	}
}

func TestToken_Context(t *testing.T) {
	t.Parallel()

	tok := &Token{
		Subject:    "u-7",
		Username:   "asha",
		Email:      "asha@example.com",
		Department: "engineering",
		Roles:      []string{"employee"},
	}
	uc := tok.Context()
	if uc.Subject != "u-7" || uc.Username != "asha" || uc.Department != "engineering" {
		t.Errorf("Context() = %+v", uc)
	}

	// The returned context must not alias the token's role slice.
	uc.Roles[0] = "admin"
	if tok.Roles[0] != "employee" {
		t.Error("Context() aliased the token role slice")
	}
}
