// Package outbound defines the ports the gateway core uses to reach backends.
package outbound

import (
	"context"
	"errors"

	"github.com/tamshai/gateway/internal/domain/identity"
)

// ErrBackendUnavailable marks a connectivity failure toward a backend. It is
// the one retryable error class; reads retry it once with backoff, and it is
// never retried inside the confirmation manager's critical section.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrRecordNotFound is returned by Inspect when the referenced domain record
// does not exist.
var ErrRecordNotFound = errors.New("record not found")

// ReadResult is a raw read response before the truncation guard runs.
// Backends fetch up to limit+1 rows so truncation is detected without a
// separate count query.
type ReadResult struct {
	// Rows are the returned records in sort-key order.
	Rows []map[string]any
}

// WriteResult is the backend's answer to an executed write.
type WriteResult struct {
	Data map[string]any
}

// TargetState is a cheap, non-mutating snapshot of a write's target record,
// used to validate preconditions when a confirmation is created and again
// when it is executed.
type TargetState struct {
	// Exists is false when the referenced record is absent.
	Exists bool
	// Status is the record's current workflow state (e.g. "SUBMITTED").
	Status string
	// SubmitterID is the subject that created/submitted the record, consumed
	// by the separation-of-duties check.
	SubmitterID string
	// Preview carries display fields for the confirmation message and UI.
	Preview map[string]any
}

// ToolBackend executes tools for one domain. The gateway decides whether a
// call may proceed; the backend's own row-level security decides, bound to
// the propagated identity, which rows the call can see or change.
type ToolBackend interface {
	// Domain returns the backend's domain name.
	Domain() string

	// Read executes a READ tool under the caller's identity. limit is the
	// page soft cap; backends fetch limit+1 rows. cursor is the decoded sort
	// key the page starts after (empty for the first page).
	Read(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any, limit int, cursor string) (*ReadResult, error)

	// Inspect returns the current state of a write's target record without
	// mutating anything. Tools without a state precondition may be inspected
	// as Exists=true with an empty status.
	Inspect(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*TargetState, error)

	// Write executes a WRITE tool under the caller's identity. Only the
	// confirmation manager calls this, after an approved decision.
	Write(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*WriteResult, error)
}
