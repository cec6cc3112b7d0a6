package confirm

import (
	"testing"
	"time"
)

func TestPendingConfirmation_Expired(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &PendingConfirmation{
		ID:        "c-1",
		CreatedAt: created,
		ExpiresAt: created.Add(DefaultTimeout),
		State:     StatePending,
	}

	if c.Expired(created.Add(4 * time.Minute)) {
		t.Error("Expired() = true before the timeout")
	}
	if c.Expired(c.ExpiresAt) {
		t.Error("Expired() = true exactly at expiry; expiry is exclusive")
	}
	if !c.Expired(created.Add(5*time.Minute + time.Second)) {
		t.Error("Expired() = false past the timeout")
	}
}
