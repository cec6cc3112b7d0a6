// Package audit contains domain types for audit logging.
package audit

import "time"

// Decision constants for audit records.
const (
	// DecisionAllow indicates the call was permitted and dispatched.
	DecisionAllow = "allow"
	// DecisionDeny indicates the call was rejected before any backend contact.
	DecisionDeny = "deny"
	// DecisionPending indicates a write was intercepted into a confirmation.
	DecisionPending = "pending"
	// DecisionExecuted indicates an approved confirmation was executed.
	DecisionExecuted = "executed"
	// DecisionDenied indicates a confirmation was resolved negatively.
	DecisionDenied = "denied"
	// DecisionExpired indicates a confirmation timed out before resolution.
	DecisionExpired = "expired"
)

// Record is one audited gateway event. Every routed call, policy denial, and
// confirmation transition produces exactly one record.
type Record struct {
	// Timestamp is when the event occurred (UTC).
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates the record with log lines.
	RequestID string `json:"request_id,omitempty"`
	// Subject is the caller's stable identifier.
	Subject string `json:"subject"`
	// Username is the caller's display identity.
	Username string `json:"username,omitempty"`
	// Domain and Tool identify the invocation.
	Domain string `json:"domain"`
	Tool   string `json:"tool"`
	// Decision is one of the Decision* constants.
	Decision string `json:"decision"`
	// Code is the error code on rejections, empty on success.
	Code string `json:"code,omitempty"`
	// ConfirmationID links confirmation-lifecycle records together.
	ConfirmationID string `json:"confirmation_id,omitempty"`
}

// Store persists audit records.
// Interface owned by domain per hexagonal architecture; implementations
// handle batching.
type Store interface {
	// Append stores audit records.
	Append(records ...Record) error

	// Close flushes pending records and releases resources.
	Close() error
}
