// Package tool contains the registry of invokable (domain, tool) pairs and
// their read/write classification.
package tool

import (
	"github.com/tamshai/gateway/internal/domain/identity"
)

// Class separates idempotent, side-effect-free reads from mutating writes.
type Class string

const (
	// ClassRead marks an idempotent, side-effect-free tool.
	ClassRead Class = "READ"
	// ClassWrite marks a mutating tool. Every write is intercepted by the
	// confirmation manager and never executed directly.
	ClassWrite Class = "WRITE"
)

// IsValid returns true for a known class.
func (c Class) IsValid() bool {
	return c == ClassRead || c == ClassWrite
}

// Spec describes one registered tool.
type Spec struct {
	// Domain is the backend domain the tool belongs to (e.g., "finance").
	Domain string
	// Name is the tool name within the domain (e.g., "approve_budget").
	Name string
	// Class is READ or WRITE.
	Class Class

	// ApprovalClass marks a write as an approval-style workflow: a
	// differently-roled approver may resolve it, and separation of duties
	// forbids submitter == approver.
	ApprovalClass bool
	// ApproverRoles are the roles allowed to resolve another user's
	// confirmation for an approval-class tool.
	ApproverRoles []string
	// AllowedStates are target-record states that permit this write.
	// Empty means the write has no state precondition.
	AllowedStates []string

	// SortKey is the result column reads are ordered by; the continuation
	// cursor is derived from the last row's value of this column.
	SortKey string
	// Summary is a human-readable template for confirmation messages;
	// {param} placeholders are filled from the invocation parameters.
	Summary string
}

// Invocation is a single tool call flowing through the gateway.
type Invocation struct {
	Domain string         `json:"domain"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`

	// Caller is the issuing identity. It is not serialized with deferred
	// invocations; the confirmation owner is stored separately.
	Caller identity.UserContext `json:"-"`
}
