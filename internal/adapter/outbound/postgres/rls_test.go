package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/tamshai/gateway/internal/domain/identity"
)

// recordingConn captures ExecContext calls for binder assertions.
type recordingConn struct {
	queries [][]any
	err     error
}

func (c *recordingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	call := append([]any{query}, args...)
	c.queries = append(c.queries, call)
	return nil, c.err
}

func TestBind_SetsAllFourAttributes(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	uc := identity.UserContext{
		Subject:    "u-42",
		Username:   "asha",
		Email:      "asha@example.com",
		Department: "engineering",
		Roles:      []string{"hr-read", "employee"},
	}

	if err := Bind(context.Background(), conn, uc); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	if len(conn.queries) != 1 {
		t.Fatalf("Bind() issued %d statements, want 1", len(conn.queries))
	}
	args := conn.queries[0][1:]
	want := []any{
		AttrUserID, "u-42",
		AttrUserRoles, "employee,hr-read",
		AttrDepartment, "engineering",
		AttrEmail, "asha@example.com",
	}
	if len(args) != len(want) {
		t.Fatalf("Bind() args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestBind_EmptyOptionalFields(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{}
	uc := identity.UserContext{Subject: "u-1", Roles: []string{"employee"}}

	if err := Bind(context.Background(), conn, uc); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	// Department and email bind as empty strings rather than being skipped,
	// so a rebind always overwrites the previous identity's values.
	args := conn.queries[0][1:]
	if args[5] != "" || args[7] != "" {
		t.Errorf("optional attributes bound as %v/%v, want empty strings", args[5], args[7])
	}
}

func TestBind_PropagatesError(t *testing.T) {
	t.Parallel()

	conn := &recordingConn{err: errors.New("connection reset")}
	err := Bind(context.Background(), conn, identity.UserContext{Subject: "u-1"})
	if err == nil {
		t.Fatal("Bind() error = nil, want propagation")
	}
}
