package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tamshai/gateway/internal/adapter/outbound/memory"
	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/tool"
	"github.com/tamshai/gateway/internal/port/outbound"
	"github.com/tamshai/gateway/pkg/api"
)

var (
	requester = identity.UserContext{Subject: "u-requester", Username: "reva", Roles: []string{"finance-read"}}
	approver  = identity.UserContext{Subject: "u-approver", Username: "ana", Roles: []string{"finance-write"}}
	submitter = identity.UserContext{Subject: "u-submitter", Username: "sam", Roles: []string{"finance-read", "finance-write"}}
	stranger  = identity.UserContext{Subject: "u-stranger", Username: "sid", Roles: []string{"employee"}}
)

func approveBudgetSpec() tool.Spec {
	return tool.Spec{
		Domain: "finance", Name: "approve_budget", Class: tool.ClassWrite,
		ApprovalClass: true,
		ApproverRoles: []string{"finance-write"},
		AllowedStates: []string{"SUBMITTED"},
		Summary:       "Approve budget {budget_id} ({amount})",
	}
}

func submittedBudget() *outbound.TargetState {
	return &outbound.TargetState{
		Exists:      true,
		Status:      "SUBMITTED",
		SubmitterID: "u-submitter",
		Preview:     map[string]any{"amount": "12500.00", "department": "engineering"},
	}
}

func newConfirmationFixture(t *testing.T, backend *stubBackend) *ConfirmationService {
	t.Helper()
	registry, err := tool.NewRegistry(tool.DefaultSpecs())
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return NewConfirmationService(
		registry,
		memory.NewConfirmationStore(),
		map[string]outbound.ToolBackend{"finance": backend},
		nil,
		testLogger(),
	)
}

func beginBudgetApproval(t *testing.T, svc *ConfirmationService, caller identity.UserContext) string {
	t.Helper()
	inv := tool.Invocation{
		Domain: "finance", Tool: "approve_budget",
		Params: map[string]any{"budget_id": "b-17"},
		Caller: caller,
	}
	resp := svc.Begin(context.Background(), approveBudgetSpec(), inv)
	if resp.Status != api.StatusPendingConfirmation {
		t.Fatalf("Begin() status = %q (code %q), want pending_confirmation", resp.Status, resp.Code)
	}
	return resp.ConfirmationID
}

func TestBegin_CreatesPendingWithExpandedMessage(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)

	inv := tool.Invocation{
		Domain: "finance", Tool: "approve_budget",
		Params: map[string]any{"budget_id": "b-17"},
		Caller: requester,
	}
	resp := svc.Begin(context.Background(), approveBudgetSpec(), inv)

	if resp.Status != api.StatusPendingConfirmation {
		t.Fatalf("status = %q, want pending_confirmation", resp.Status)
	}
	if resp.ConfirmationID == "" {
		t.Error("ConfirmationID is empty")
	}
	if want := "Approve budget b-17 (12500.00)"; resp.Message != want {
		t.Errorf("Message = %q, want %q", resp.Message, want)
	}
	if resp.ConfirmationData["amount"] != "12500.00" {
		t.Errorf("ConfirmationData = %v", resp.ConfirmationData)
	}
	if n := backend.writeCalls.Load(); n != 0 {
		t.Errorf("backend writes during Begin = %d, want 0", n)
	}
}

func TestBegin_TargetNotFound(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectErr: outbound.ErrRecordNotFound}
	svc := newConfirmationFixture(t, backend)

	resp := svc.Begin(context.Background(), approveBudgetSpec(), tool.Invocation{
		Domain: "finance", Tool: "approve_budget",
		Params: map[string]any{"budget_id": "ghost"},
		Caller: requester,
	})
	if resp.Code != api.CodeNotFound {
		t.Errorf("code = %q, want NOT_FOUND", resp.Code)
	}
}

func TestBegin_InvalidState(t *testing.T) {
	t.Parallel()

	state := submittedBudget()
	state.Status = "APPROVED"
	backend := &stubBackend{domain: "finance", inspectState: state}
	svc := newConfirmationFixture(t, backend)

	resp := svc.Begin(context.Background(), approveBudgetSpec(), tool.Invocation{
		Domain: "finance", Tool: "approve_budget",
		Params: map[string]any{"budget_id": "b-17"},
		Caller: requester,
	})
	if resp.Code != api.CodeInvalidState {
		t.Errorf("code = %q, want INVALID_STATE", resp.Code)
	}
	if !strings.Contains(resp.Message, "APPROVED") {
		t.Errorf("Message %q does not name the current state", resp.Message)
	}
}

func TestResolve_OwnerDeniesWithoutBackendContact(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	resp := svc.Resolve(context.Background(), id, false, requester)
	if resp.Status != api.StatusSuccess {
		t.Fatalf("status = %q (code %q), want success", resp.Status, resp.Code)
	}
	data := resp.Data.(map[string]any)
	if data["result"] != "denied" {
		t.Errorf("result = %v, want denied", data["result"])
	}
	if n := backend.writeCalls.Load(); n != 0 {
		t.Errorf("backend writes after denial = %d, want 0", n)
	}

	// A resolved id behaves as if it never existed.
	again := svc.Resolve(context.Background(), id, true, approver)
	if again.Code != api.CodeConfirmationNotFound {
		t.Errorf("second resolve code = %q, want CONFIRMATION_NOT_FOUND", again.Code)
	}
}

func TestResolve_ApproverExecutes(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	resp := svc.Resolve(context.Background(), id, true, approver)
	if resp.Status != api.StatusSuccess {
		t.Fatalf("status = %q (code %q), want success", resp.Status, resp.Code)
	}
	data := resp.Data.(map[string]any)
	if data["result"] != "executed" {
		t.Errorf("result = %v, want executed", data["result"])
	}
	if n := backend.writeCalls.Load(); n != 1 {
		t.Errorf("backend writes = %d, want 1", n)
	}
}

func TestResolve_SeparationOfDuties(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	// The submitter holds an approver role but may not approve their own record.
	resp := svc.Resolve(context.Background(), id, true, submitter)
	if resp.Code != api.CodeSeparationOfDuties {
		t.Fatalf("code = %q, want SEPARATION_OF_DUTIES", resp.Code)
	}
	if n := backend.writeCalls.Load(); n != 0 {
		t.Errorf("backend writes = %d, want 0", n)
	}

	// The confirmation survives for a different approver.
	resp = svc.Resolve(context.Background(), id, true, approver)
	if resp.Status != api.StatusSuccess {
		t.Errorf("status after legit approval = %q (code %q)", resp.Status, resp.Code)
	}

	// The submitter may still deny a fresh confirmation of their record.
	id2 := beginBudgetApproval(t, svc, requester)
	resp = svc.Resolve(context.Background(), id2, false, submitter)
	if resp.Status != api.StatusSuccess {
		t.Errorf("submitter denial status = %q (code %q), want success", resp.Status, resp.Code)
	}
}

func TestBegin_SubmitterRequestingOwnApproval(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)

	// Separation of duties binds at creation: the submitter cannot open an
	// approval of their own record, so no confirmation is persisted at all.
	resp := svc.Begin(context.Background(), approveBudgetSpec(), tool.Invocation{
		Domain: "finance", Tool: "approve_budget",
		Params: map[string]any{"budget_id": "b-17"},
		Caller: submitter,
	})
	if resp.Code != api.CodeSeparationOfDuties {
		t.Fatalf("self-submitted approval code = %q, want SEPARATION_OF_DUTIES", resp.Code)
	}
	if n := svc.CountPending(context.Background()); n != 0 {
		t.Errorf("pending confirmations after rejected create = %d, want 0", n)
	}

	// A different requester still opens the same approval normally.
	beginBudgetApproval(t, svc, requester)
}

func TestResolve_StrangerRejected(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	for _, approved := range []bool{true, false} {
		resp := svc.Resolve(context.Background(), id, approved, stranger)
		if resp.Code != api.CodeInsufficientPermissions {
			t.Errorf("stranger resolve(approved=%v) code = %q, want INSUFFICIENT_PERMISSIONS", approved, resp.Code)
		}
	}
}

func TestResolve_Expired(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)

	current := time.Now().UTC()
	svc.now = func() time.Time { return current }
	id := beginBudgetApproval(t, svc, requester)

	current = current.Add(confirm.DefaultTimeout + time.Second)
	resp := svc.Resolve(context.Background(), id, true, approver)
	if resp.Code != api.CodeConfirmationExpired {
		t.Fatalf("code = %q, want CONFIRMATION_EXPIRED", resp.Code)
	}
	if n := backend.writeCalls.Load(); n != 0 {
		t.Errorf("backend writes after expiry = %d, want 0", n)
	}

	again := svc.Resolve(context.Background(), id, true, approver)
	if again.Code != api.CodeConfirmationNotFound {
		t.Errorf("resolve after expiry code = %q, want CONFIRMATION_NOT_FOUND", again.Code)
	}
}

func TestResolve_ConcurrentApprovalsExecuteOnce(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	const contenders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	executed := 0
	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			defer wg.Done()
			resp := svc.Resolve(context.Background(), id, true, approver)
			if resp.Status == api.StatusSuccess {
				mu.Lock()
				executed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if executed != 1 {
		t.Errorf("successful approvals = %d, want exactly 1", executed)
	}
	if n := backend.writeCalls.Load(); n != 1 {
		t.Errorf("backend writes = %d, want exactly 1", n)
	}
}

func TestResolve_FailedExecutionConsumesID(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget(), writeErr: outbound.ErrBackendUnavailable}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	resp := svc.Resolve(context.Background(), id, true, approver)
	if resp.Code != api.CodeBackendUnavailable {
		t.Fatalf("code = %q, want BACKEND_UNAVAILABLE", resp.Code)
	}

	again := svc.Resolve(context.Background(), id, true, approver)
	if again.Code != api.CodeConfirmationNotFound {
		t.Errorf("retry on consumed id code = %q, want CONFIRMATION_NOT_FOUND", again.Code)
	}
}

func TestResolve_StateChangedWhilePending(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)

	// A third party approves the budget out of band before the decision.
	backend.inspectState = &outbound.TargetState{Exists: true, Status: "APPROVED", SubmitterID: "u-submitter"}

	resp := svc.Resolve(context.Background(), id, true, approver)
	if resp.Code != api.CodeInvalidState {
		t.Fatalf("code = %q, want INVALID_STATE", resp.Code)
	}
	if n := backend.writeCalls.Load(); n != 0 {
		t.Errorf("backend writes = %d, want 0", n)
	}
}

func TestResolve_UnknownID(t *testing.T) {
	t.Parallel()

	svc := newConfirmationFixture(t, &stubBackend{domain: "finance"})
	resp := svc.Resolve(context.Background(), "no-such-id", true, approver)
	if resp.Code != api.CodeConfirmationNotFound {
		t.Errorf("code = %q, want CONFIRMATION_NOT_FOUND", resp.Code)
	}
}

func TestListForOwner(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{domain: "finance", inspectState: submittedBudget()}
	svc := newConfirmationFixture(t, backend)
	id := beginBudgetApproval(t, svc, requester)
	beginBudgetApproval(t, svc, approver)

	list, err := svc.ListForOwner(context.Background(), requester.Subject)
	if err != nil {
		t.Fatalf("ListForOwner() error: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("ListForOwner() = %v, want single confirmation %s", list, id)
	}
	if svc.CountPending(context.Background()) != 2 {
		t.Errorf("CountPending() = %d, want 2", svc.CountPending(context.Background()))
	}
}
