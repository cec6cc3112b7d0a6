package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tamshai/gateway/internal/ctxkey"
	"github.com/tamshai/gateway/internal/domain/audit"
	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/tool"
	"github.com/tamshai/gateway/internal/port/outbound"
	"github.com/tamshai/gateway/pkg/api"
)

// ConfirmationService owns the two-phase write workflow: it intercepts every
// mutating call into a PENDING confirmation and executes the deferred call
// only after an authorized, unexpired, exactly-once approval.
type ConfirmationService struct {
	registry *tool.Registry
	store    confirm.Store
	backends map[string]outbound.ToolBackend
	auditor  *AuditService

	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// ConfirmationOption configures ConfirmationService.
type ConfirmationOption func(*ConfirmationService)

// WithConfirmationTimeout sets how long confirmations stay resolvable.
func WithConfirmationTimeout(d time.Duration) ConfirmationOption {
	return func(s *ConfirmationService) { s.timeout = d }
}

// WithConfirmationClock overrides the time source.
func WithConfirmationClock(now func() time.Time) ConfirmationOption {
	return func(s *ConfirmationService) { s.now = now }
}

// NewConfirmationService builds the confirmation workflow service.
func NewConfirmationService(
	registry *tool.Registry,
	store confirm.Store,
	backends map[string]outbound.ToolBackend,
	auditor *AuditService,
	logger *slog.Logger,
	opts ...ConfirmationOption,
) *ConfirmationService {
	s := &ConfirmationService{
		registry: registry,
		store:    store,
		backends: backends,
		auditor:  auditor,
		timeout:  confirm.DefaultTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin intercepts a policy-approved write into a pending confirmation.
// The backend is contacted only to inspect the target record; nothing is
// mutated until the confirmation is approved.
func (s *ConfirmationService) Begin(ctx context.Context, spec tool.Spec, inv tool.Invocation) *api.Response {
	backend, ok := s.backends[inv.Domain]
	if !ok {
		return api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Retry later; the backend for this domain is not configured or not reachable.",
			"no backend serves domain %s", inv.Domain))
	}

	state, err := backend.Inspect(ctx, inv.Caller, inv.Tool, inv.Params)
	if err != nil {
		resp := s.inspectError(err, inv)
		s.audit(ctx, inv.Caller, inv.Domain, inv.Tool, audit.DecisionDeny, string(resp.Code), "")
		return resp
	}

	if resp := s.checkPreconditions(spec, inv, state); resp != nil {
		s.audit(ctx, inv.Caller, inv.Domain, inv.Tool, audit.DecisionDeny, string(resp.Code), "")
		return resp
	}

	// Separation of duties, checked again at resolve: the submitter of an
	// approval-class record cannot initiate its approval, so reject before
	// creating a confirmation nobody could lawfully approve on their behalf.
	if spec.ApprovalClass && state.SubmitterID != "" && inv.Caller.Subject == state.SubmitterID {
		resp := api.FromError(api.NewError(api.CodeSeparationOfDuties,
			"The submitter of a record cannot request its approval.",
			"Have a different holder of an approver role initiate this operation."))
		s.audit(ctx, inv.Caller, inv.Domain, inv.Tool, audit.DecisionDeny, string(resp.Code), "")
		return resp
	}

	now := s.now()
	c := &confirm.PendingConfirmation{
		ID:            uuid.NewString(),
		Owner:         inv.Caller,
		Request:       inv,
		Message:       buildMessage(spec, inv, state),
		Preview:       state.Preview,
		ApprovalClass: spec.ApprovalClass,
		ApproverRoles: spec.ApproverRoles,
		SubmitterID:   state.SubmitterID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.timeout),
		State:         confirm.StatePending,
	}
	if err := s.store.Create(ctx, c); err != nil {
		s.logger.Error("confirmation create failed", "domain", inv.Domain, "tool", inv.Tool, "error", err)
		return api.FromError(err)
	}

	s.audit(ctx, inv.Caller, inv.Domain, inv.Tool, audit.DecisionPending, "", c.ID)
	return api.PendingConfirmation(c.ID, c.Message, c.Preview)
}

// Resolve applies a human decision to a pending confirmation. The id is
// single-use: whatever the outcome of an approved execution, the confirmation
// is consumed.
func (s *ConfirmationService) Resolve(ctx context.Context, id string, approved bool, decider identity.UserContext) *api.Response {
	c, err := s.store.Get(ctx, id)
	if err != nil || c.State != confirm.StatePending {
		return confirmationGone()
	}

	if c.Expired(s.now()) {
		// Mark it expired; losing this race to a sweep or another resolver
		// changes nothing the caller can observe.
		if _, err := s.store.Resolve(ctx, id, confirm.StateExpired); err == nil {
			s.audit(ctx, c.Owner, c.Request.Domain, c.Request.Tool, audit.DecisionExpired, "", id)
		}
		return api.FromError(api.NewError(api.CodeConfirmationExpired,
			fmt.Sprintf("Confirmation %s expired before a decision arrived.", id),
			"Issue the original request again to create a fresh confirmation."))
	}

	if resp := s.authorizeDecider(c, decider, approved); resp != nil {
		s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDeny, string(resp.Code), id)
		return resp
	}

	if !approved {
		if _, err := s.store.Resolve(ctx, id, confirm.StateDenied); err != nil {
			return confirmationGone()
		}
		s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDenied, "", id)
		return api.Success(map[string]any{
			"confirmationId": id,
			"result":         "denied",
		})
	}

	return s.execute(ctx, id, c, decider)
}

// execute claims the confirmation and runs the deferred write. The claim
// happens before the backend call so concurrent approvals cannot double-run;
// a failed execution still consumes the id, leaving the stored state EXECUTED
// (a claim marker, not proof the backend was touched) and the failure in the
// audit trail. The caller restarts the two-phase flow for another attempt.
func (s *ConfirmationService) execute(ctx context.Context, id string, c *confirm.PendingConfirmation, decider identity.UserContext) *api.Response {
	if _, err := s.store.Resolve(ctx, id, confirm.StateExecuted); err != nil {
		return confirmationGone()
	}

	backend, ok := s.backends[c.Request.Domain]
	if !ok {
		s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDeny, string(api.CodeBackendUnavailable), id)
		return api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Retry later; the backend for this domain is not reachable.",
			"no backend serves domain %s", c.Request.Domain))
	}

	// Re-validate preconditions against the live record: the world may have
	// moved on while the confirmation sat pending.
	state, err := backend.Inspect(ctx, c.Owner, c.Request.Tool, c.Request.Params)
	if err != nil {
		resp := s.inspectError(err, c.Request)
		s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDeny, string(resp.Code), id)
		return resp
	}
	if spec, ok := s.registry.Resolve(c.Request.Domain, c.Request.Tool); ok {
		if resp := s.checkPreconditions(spec, c.Request, state); resp != nil {
			s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDeny, string(resp.Code), id)
			return resp
		}
	}

	result, err := backend.Write(ctx, c.Owner, c.Request.Tool, c.Request.Params)
	if err != nil {
		resp := s.writeError(err, c.Request)
		s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionDeny, string(resp.Code), id)
		return resp
	}

	s.audit(ctx, decider, c.Request.Domain, c.Request.Tool, audit.DecisionExecuted, "", id)
	return api.Success(map[string]any{
		"confirmationId": id,
		"result":         "executed",
		"data":           result.Data,
	})
}

// authorizeDecider decides whether this identity may resolve this
// confirmation in the requested direction. Returns nil when authorized.
func (s *ConfirmationService) authorizeDecider(c *confirm.PendingConfirmation, decider identity.UserContext, approved bool) *api.Response {
	isOwner := decider.Subject == c.Owner.Subject

	if !isOwner {
		// A third party may only decide approval-class confirmations, and
		// only when holding an approver role.
		if !c.ApprovalClass || !decider.HasAnyRole(c.ApproverRoles...) {
			return api.FromError(api.NewError(api.CodeInsufficientPermissions,
				"This confirmation can only be resolved by its owner"+approverHint(c),
				"Ask the confirmation owner or an approver to resolve it."))
		}
	}

	if approved && c.ApprovalClass && c.SubmitterID != "" && decider.Subject == c.SubmitterID {
		// Separation of duties: the submitter of the underlying record may
		// deny but never approve it. The confirmation stays pending for a
		// different approver.
		return api.FromError(api.NewError(api.CodeSeparationOfDuties,
			"The submitter of a record cannot approve it.",
			"Have a different holder of an approver role resolve this confirmation."))
	}
	return nil
}

// checkPreconditions validates the inspected target state against the tool's
// allowed states. Returns nil when the write may proceed.
func (s *ConfirmationService) checkPreconditions(spec tool.Spec, inv tool.Invocation, state *outbound.TargetState) *api.Response {
	if len(spec.AllowedStates) == 0 {
		return nil
	}
	for _, allowed := range spec.AllowedStates {
		if state.Status == allowed {
			return nil
		}
	}
	return api.FromError(api.Errorf(api.CodeInvalidState,
		fmt.Sprintf("The record must be in state %s for this operation.", strings.Join(spec.AllowedStates, " or ")),
		"%s/%s target is in state %s", inv.Domain, inv.Tool, state.Status))
}

func (s *ConfirmationService) inspectError(err error, inv tool.Invocation) *api.Response {
	switch {
	case errors.Is(err, outbound.ErrRecordNotFound):
		return api.FromError(api.Errorf(api.CodeNotFound,
			"Check the record identifier; it may have been deleted or be outside your visibility.",
			"%s/%s target record not found", inv.Domain, inv.Tool))
	case errors.Is(err, outbound.ErrBackendUnavailable):
		return api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Retry later.", "%s backend unreachable", inv.Domain))
	default:
		s.logger.Error("target inspection failed", "domain", inv.Domain, "tool", inv.Tool, "error", err)
		return api.FromError(err)
	}
}

func (s *ConfirmationService) writeError(err error, inv tool.Invocation) *api.Response {
	switch {
	case errors.Is(err, outbound.ErrRecordNotFound):
		return api.FromError(api.Errorf(api.CodeNotFound,
			"The record disappeared between approval and execution.",
			"%s/%s target record not found", inv.Domain, inv.Tool))
	case errors.Is(err, outbound.ErrBackendUnavailable):
		// The id is already consumed; the caller must restart the two-phase
		// flow rather than retry this confirmation.
		return api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Issue the original request again; this confirmation has been consumed.",
			"%s backend unreachable during execution", inv.Domain))
	default:
		s.logger.Error("deferred write failed", "domain", inv.Domain, "tool", inv.Tool, "error", err)
		return api.FromError(err)
	}
}

// ListForOwner returns the caller's unexpired pending confirmations.
func (s *ConfirmationService) ListForOwner(ctx context.Context, subject string) ([]*confirm.PendingConfirmation, error) {
	return s.store.ListByOwner(ctx, subject, s.now())
}

// CountPending returns the number of pending confirmations, for metrics.
func (s *ConfirmationService) CountPending(ctx context.Context) int {
	n, err := s.store.CountPending(ctx)
	if err != nil {
		return 0
	}
	return n
}

// StartJanitor sweeps resolved and expired confirmations on an interval until
// the context is cancelled. Optional; expiry is enforced passively either way.
func (s *ConfirmationService) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.store.Sweep(ctx, s.now()); err != nil {
					s.logger.Warn("confirmation sweep failed", "error", err)
				} else if removed > 0 {
					s.logger.Debug("confirmation sweep", "removed", removed)
				}
			}
		}
	}()
}

func (s *ConfirmationService) audit(ctx context.Context, who identity.UserContext, domain, toolName, decision, code, confirmationID string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(audit.Record{
		Timestamp:      s.now(),
		RequestID:      requestID(ctx),
		Subject:        who.Subject,
		Username:       who.Username,
		Domain:         domain,
		Tool:           toolName,
		Decision:       decision,
		Code:           code,
		ConfirmationID: confirmationID,
	})
}

// confirmationGone is the uniform answer for unknown, already-resolved, and
// lost-race confirmation ids; a consumed id is indistinguishable from one
// that never existed.
func confirmationGone() *api.Response {
	return api.FromError(api.NewError(api.CodeConfirmationNotFound,
		"No pending confirmation exists with this id.",
		"The id may be mistyped, already resolved, or expired and swept. Issue the original request again."))
}

// buildMessage renders the confirmation summary, filling {param} placeholders
// from the invocation parameters and the inspected preview.
func buildMessage(spec tool.Spec, inv tool.Invocation, state *outbound.TargetState) string {
	if spec.Summary == "" {
		return fmt.Sprintf("Confirm %s/%s", inv.Domain, inv.Tool)
	}
	msg := spec.Summary
	for k, v := range inv.Params {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	for k, v := range state.Preview {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return msg
}

func approverHint(c *confirm.PendingConfirmation) string {
	if !c.ApprovalClass || len(c.ApproverRoles) == 0 {
		return "."
	}
	return " or by a holder of: " + strings.Join(c.ApproverRoles, ", ") + "."
}

// requestID extracts the per-request id from the context, if present.
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxkey.RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}
