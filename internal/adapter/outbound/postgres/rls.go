// Package postgres provides the SQL tool backend and the row-level security
// session binder. The backend database enforces row visibility itself through
// RLS policies reading the session attributes bound here, giving a second
// enforcement point independent of the gateway's policy table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tamshai/gateway/internal/domain/identity"
)

// Session attribute names read by the backend RLS policies.
const (
	AttrUserID     = "app.user_id"
	AttrUserRoles  = "app.user_roles"
	AttrDepartment = "app.department"
	AttrEmail      = "app.email"
)

// Execer is the subset of *sql.Conn the binder needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Bind sets the four identity session attributes on the connection,
// immediately before any query runs on it. A pooled connection checked out
// for a new request must be rebound; a connection never carries a previous
// identity's binding into another identity's query.
//
// set_config(..., false) scopes the attributes to the session, surviving
// until the next Bind on the same connection.
func Bind(ctx context.Context, conn Execer, uc identity.UserContext) error {
	_, err := conn.ExecContext(ctx,
		`SELECT set_config($1, $2, false),
		        set_config($3, $4, false),
		        set_config($5, $6, false),
		        set_config($7, $8, false)`,
		AttrUserID, uc.Subject,
		AttrUserRoles, uc.RoleList(),
		AttrDepartment, uc.Department,
		AttrEmail, uc.Email,
	)
	if err != nil {
		return fmt.Errorf("bind rls session: %w", err)
	}
	return nil
}
