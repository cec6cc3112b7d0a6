// Package confirm contains the two-phase confirmation workflow types: every
// mutating tool call becomes a time-boxed PendingConfirmation that a human
// must resolve before the backend is touched.
package confirm

import (
	"time"

	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/tool"
)

// DefaultTimeout is how long a confirmation stays resolvable.
const DefaultTimeout = 5 * time.Minute

// State is the lifecycle state of a confirmation.
// Transitions: PENDING -> EXECUTED | DENIED | EXPIRED. Terminal states never
// transition again; confirmation ids are single-use.
type State string

const (
	// StatePending means the confirmation awaits a human decision.
	StatePending State = "PENDING"
	// StateExecuted means an approval claimed the confirmation for execution.
	// The claim is taken before the backend write so concurrent approvals
	// cannot double-run; a write that then fails leaves this state in place
	// and the id consumed, with the outcome recorded in the audit trail.
	StateExecuted State = "EXECUTED"
	// StateDenied means the decision was negative; the backend was not touched.
	StateDenied State = "DENIED"
	// StateExpired means the timeout elapsed before a decision arrived.
	StateExpired State = "EXPIRED"
)

// PendingConfirmation is the deferred, inspectable artifact standing between
// a requested write and its execution.
type PendingConfirmation struct {
	// ID is the single-use, unguessable confirmation id.
	ID string `json:"id"`
	// Owner is the identity that issued the intercepted write.
	Owner identity.UserContext `json:"owner"`
	// Request is the deferred tool invocation, replayed on approval.
	Request tool.Invocation `json:"request"`
	// Message is the human-readable summary shown to the decider.
	Message string `json:"message"`
	// Preview is structured data for UI rendering.
	Preview map[string]any `json:"preview,omitempty"`

	// ApprovalClass and ApproverRoles mirror the tool spec at creation time,
	// so resolution does not depend on the registry still agreeing.
	ApprovalClass bool     `json:"approval_class"`
	ApproverRoles []string `json:"approver_roles,omitempty"`
	// SubmitterID is the subject that submitted the target record, captured
	// at creation for the separation-of-duties check.
	SubmitterID string `json:"submitter_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	State     State     `json:"state"`
}

// Expired reports whether the confirmation is past its expiry at the given
// time. Expiry is checked passively at read and resolve time; no background
// sweep is needed for correctness.
func (c *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
