// Package policy contains the static access policy table: role-based grants
// over (domain, tool, class) with optional ownership conditions.
package policy

import "github.com/tamshai/gateway/internal/domain/tool"

// Grant permits one role to invoke matching tools of one domain.
type Grant struct {
	// Role is the role name this grant applies to.
	Role string
	// Domain is the backend domain (exact match).
	Domain string
	// Tool is the tool name; either exact ("approve_budget") or a prefix
	// glob with a trailing star ("list_*", "*").
	Tool string
	// Class is the permitted class, READ or WRITE. A grant never spans both;
	// a role needing both holds two grants.
	Class tool.Class
	// Condition is an optional CEL expression over the request, evaluated
	// with `subject`, `department`, `roles` and `params` in scope. It
	// implements ownership-style constraints, e.g.
	// `params.employee_id == subject`. An absent condition always holds;
	// a failing or erroring condition denies.
	Condition string
}

// Decision is the outcome of a policy check.
type Decision struct {
	// Allowed is true if some grant of the caller's role set permits the call.
	Allowed bool
	// Role is the role whose grant allowed the call.
	Role string
	// Cacheable is false when the outcome depended on a CEL condition over
	// request parameters; such outcomes must not be reused across requests.
	Cacheable bool
}
