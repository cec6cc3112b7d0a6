package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/tool"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfirmation(id, subject string) *confirm.PendingConfirmation {
	now := time.Now().UTC()
	return &confirm.PendingConfirmation{
		ID:    id,
		Owner: identity.UserContext{Subject: subject, Username: subject, Roles: []string{"finance-read"}},
		Request: tool.Invocation{
			Domain: "finance",
			Tool:   "approve_budget",
			Params: map[string]any{"budget_id": "b-1"},
		},
		Message:   "Approve budget b-1",
		CreatedAt: now,
		ExpiresAt: now.Add(confirm.DefaultTimeout),
		State:     confirm.StatePending,
	}
}

func TestConfirmationStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewConfirmationStore()

	if err := store.Create(ctx, testConfirmation("c-1", "u-1")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != confirm.StatePending {
		t.Errorf("State = %q, want PENDING", got.State)
	}
	if got.Request.Tool != "approve_budget" {
		t.Errorf("Request.Tool = %q", got.Request.Tool)
	}

	// Mutating the returned copy must not affect the stored confirmation.
	got.Request.Params["budget_id"] = "tampered"
	again, _ := store.Get(ctx, "c-1")
	if again.Request.Params["budget_id"] != "b-1" {
		t.Error("Get() returned an aliased confirmation")
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, confirm.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConfirmationStore_ResolveOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewConfirmationStore()
	_ = store.Create(ctx, testConfirmation("c-1", "u-1"))

	resolved, err := store.Resolve(ctx, "c-1", confirm.StateDenied)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if resolved.State != confirm.StateDenied {
		t.Errorf("State = %q, want DENIED", resolved.State)
	}

	if _, err := store.Resolve(ctx, "c-1", confirm.StateExecuted); !errors.Is(err, confirm.ErrNotPending) {
		t.Errorf("second Resolve() error = %v, want ErrNotPending", err)
	}
	if _, err := store.Resolve(ctx, "missing", confirm.StateDenied); !errors.Is(err, confirm.ErrNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConfirmationStore_ConcurrentResolveExactlyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewConfirmationStore()
	_ = store.Create(ctx, testConfirmation("c-race", "u-1"))

	const contenders = 16
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.Resolve(ctx, "c-race", confirm.StateExecuted); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestConfirmationStore_ListByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewConfirmationStore()
	now := time.Now().UTC()

	_ = store.Create(ctx, testConfirmation("c-1", "u-1"))
	_ = store.Create(ctx, testConfirmation("c-2", "u-2"))

	expired := testConfirmation("c-3", "u-1")
	expired.ExpiresAt = now.Add(-time.Minute)
	_ = store.Create(ctx, expired)

	resolved := testConfirmation("c-4", "u-1")
	_ = store.Create(ctx, resolved)
	_, _ = store.Resolve(ctx, "c-4", confirm.StateDenied)

	list, err := store.ListByOwner(ctx, "u-1", now)
	if err != nil {
		t.Fatalf("ListByOwner() error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "c-1" {
		t.Errorf("ListByOwner() = %v, want only c-1", list)
	}
}

func TestConfirmationStore_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewConfirmationStore()
	now := time.Now().UTC()

	_ = store.Create(ctx, testConfirmation("live", "u-1"))

	expired := testConfirmation("expired", "u-1")
	expired.ExpiresAt = now.Add(-time.Minute)
	_ = store.Create(ctx, expired)

	done := testConfirmation("done", "u-1")
	_ = store.Create(ctx, done)
	_, _ = store.Resolve(ctx, "done", confirm.StateExecuted)

	removed, err := store.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Sweep() removed %d, want 2", removed)
	}

	if _, err := store.Get(ctx, "live"); err != nil {
		t.Errorf("Sweep() removed a live confirmation: %v", err)
	}
	if n, _ := store.CountPending(ctx); n != 1 {
		t.Errorf("CountPending() = %d, want 1", n)
	}
}
