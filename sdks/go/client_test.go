package tamshai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func jsonHandler(t *testing.T, status int, body any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func newTestClient(srvURL string, opts ...Option) *Client {
	base := []Option{
		WithServerAddr(srvURL),
		WithToken("tok-test"),
		WithTimeout(2 * time.Second),
	}
	return NewClient(append(base, opts...)...)
}

func TestNewClientEnvDefaults(t *testing.T) {
	t.Setenv("TAMSHAI_GATEWAY_ADDR", "https://gw.internal")
	t.Setenv("TAMSHAI_GATEWAY_TOKEN", "tok-env")
	t.Setenv("TAMSHAI_GATEWAY_TIMEOUT", "3s")

	c := NewClient()
	if c.serverAddr != "https://gw.internal" {
		t.Errorf("serverAddr = %q", c.serverAddr)
	}
	if c.token != "tok-env" {
		t.Errorf("token = %q", c.token)
	}
	if c.timeout != 3*time.Second {
		t.Errorf("timeout = %v", c.timeout)
	}

	// Options override the environment.
	c = NewClient(WithToken("tok-opt"))
	if c.token != "tok-opt" {
		t.Errorf("token = %q, want tok-opt", c.token)
	}
}

func TestInvokeRead(t *testing.T) {
	var gotAuth, gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotPath.Store(r.URL.Path)
		jsonHandler(t, http.StatusOK, map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"budget_id": "b-001"},
				{"budget_id": "b-002"},
			},
			"metadata": map[string]any{
				"returnedCount": 2,
				"hasMore":       true,
				"nextCursor":    "djE6Yi0wMDI",
				"warning":       "Results are truncated",
			},
		})(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Invoke(context.Background(), "finance", "list_budgets", map[string]any{"q": "x"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if gotAuth.Load() != "Bearer tok-test" {
		t.Errorf("Authorization = %q", gotAuth.Load())
	}
	if gotPath.Load() != "/api/mcp/finance/list_budgets" {
		t.Errorf("path = %q", gotPath.Load())
	}

	rows := result.Rows()
	if len(rows) != 2 || rows[0]["budget_id"] != "b-001" {
		t.Errorf("rows = %v", rows)
	}
	if result.Metadata == nil || !result.Metadata.HasMore || result.Metadata.NextCursor == "" {
		t.Errorf("metadata = %+v", result.Metadata)
	}
	if result.Pending != nil {
		t.Errorf("unexpected pending: %+v", result.Pending)
	}
}

func TestInvokeWriteReturnsPending(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]any{
		"status":           "pending_confirmation",
		"confirmationId":   "c-123",
		"message":          "Approve budget b-17 (12500.00)",
		"confirmationData": map[string]any{"amount": "12500.00"},
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Invoke(context.Background(), "finance", "approve_budget", map[string]any{"budget_id": "b-17"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if result.Pending == nil {
		t.Fatal("Pending is nil")
	}
	if result.Pending.ID != "c-123" {
		t.Errorf("ID = %q", result.Pending.ID)
	}
	if result.Pending.Preview["amount"] != "12500.00" {
		t.Errorf("Preview = %v", result.Pending.Preview)
	}
}

func TestInvokePermissionDenied(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusForbidden, map[string]any{
		"status":          "error",
		"code":            "INSUFFICIENT_PERMISSIONS",
		"message":         "none of your roles grants finance/approve_budget",
		"suggestedAction": "Ask for the finance-write role.",
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Invoke(context.Background(), "finance", "approve_budget", nil)
	if err == nil {
		t.Fatal("Invoke() succeeded, want error")
	}

	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error type %T, want *PermissionDeniedError", err)
	}
	if denied.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d", denied.HTTPStatus)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("errors.Is(err, ErrPermissionDenied) = false")
	}
	if errors.Is(err, ErrConfirmationNotFound) {
		t.Error("error matches ErrConfirmationNotFound")
	}
}

func TestExecuteConsumedID(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusNotFound, map[string]any{
		"status":  "error",
		"code":    "CONFIRMATION_NOT_FOUND",
		"message": "confirmation c-123 is unknown or already resolved",
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Approve(context.Background(), "c-123")
	if !errors.Is(err, ErrConfirmationNotFound) {
		t.Fatalf("error = %v, want ErrConfirmationNotFound", err)
	}
}

func TestExecuteSendsDecision(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		gotBody.Store(body)
		jsonHandler(t, http.StatusOK, map[string]any{
			"status": "success",
			"data":   map[string]any{"result": "denied"},
		})(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Deny(context.Background(), "c-9", "wrong amount"); err != nil {
		t.Fatalf("Deny() error: %v", err)
	}

	body := gotBody.Load().(map[string]any)
	if body["confirmationId"] != "c-9" || body["approved"] != false || body["comments"] != "wrong amount" {
		t.Errorf("request body = %v", body)
	}
}

func TestPendingConfirmations(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"confirmations": []map[string]any{
				{"id": "c-1", "message": "Approve budget b-1 (100.00)"},
				{"id": "c-2", "message": "Approve budget b-2 (200.00)"},
			},
		},
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	pending, err := c.PendingConfirmations(context.Background())
	if err != nil {
		t.Fatalf("PendingConfirmations() error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "c-1" || pending[1].ID != "c-2" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestWaitForResolution(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list := []map[string]any{}
		if calls.Add(1) <= 2 {
			list = append(list, map[string]any{"id": "c-77"})
		}
		jsonHandler(t, http.StatusOK, map[string]any{
			"status": "success",
			"data":   map[string]any{"confirmations": list},
		})(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithPollInterval(5*time.Millisecond))
	if err := c.WaitForResolution(context.Background(), "c-77"); err != nil {
		t.Fatalf("WaitForResolution() error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}
}

func TestWaitForResolutionTimeout(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"confirmations": []map[string]any{{"id": "c-88"}},
		},
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithPollInterval(time.Millisecond), WithMaxPolls(3))
	err := c.WaitForResolution(context.Background(), "c-88")
	if !errors.Is(err, ErrResolutionTimeout) {
		t.Fatalf("error = %v, want ErrResolutionTimeout", err)
	}
}

func TestReadAllFollowsCursor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode params: %v", err)
		}

		switch calls.Add(1) {
		case 1:
			if params["cursor"] != nil {
				t.Errorf("first page carries cursor %v", params["cursor"])
			}
			jsonHandler(t, http.StatusOK, map[string]any{
				"status":   "success",
				"data":     []map[string]any{{"budget_id": "b-1"}},
				"metadata": map[string]any{"returnedCount": 1, "hasMore": true, "nextCursor": "cur-2"},
			})(w, r)
		default:
			if params["cursor"] != "cur-2" {
				t.Errorf("second page cursor = %v", params["cursor"])
			}
			jsonHandler(t, http.StatusOK, map[string]any{
				"status":   "success",
				"data":     []map[string]any{{"budget_id": "b-2"}},
				"metadata": map[string]any{"returnedCount": 1, "hasMore": false},
			})(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rows, err := c.ReadAll(context.Background(), "finance", "list_budgets", nil, 0)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(rows) != 2 || rows[0]["budget_id"] != "b-1" || rows[1]["budget_id"] != "b-2" {
		t.Errorf("rows = %v", rows)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // Connection refused from here on.

	c := newTestClient(srv.URL)
	_, err := c.Invoke(context.Background(), "finance", "list_budgets", nil)
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("error = %v, want ErrServerUnreachable", err)
	}

	var unreachable *ServerUnreachableError
	if !errors.As(err, &unreachable) || unreachable.Cause == nil {
		t.Errorf("error %v lacks transport cause", err)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient("http://127.0.0.1:0")
	_, err := c.Invoke(ctx, "finance", "list_budgets", nil)
	if err == nil {
		t.Fatal("Invoke() succeeded with cancelled context")
	}
	if errors.Is(err, ErrServerUnreachable) {
		t.Errorf("cancellation mapped to ErrServerUnreachable: %v", err)
	}
}
