package tool

// DefaultSpecs returns the built-in tool catalog for the HR, Finance, and
// Sales domains. Backends may serve a subset; the router only dispatches
// tools that are both registered here and granted by the policy table.
func DefaultSpecs() []Spec {
	return []Spec{
		// HR
		{Domain: "hr", Name: "list_employees", Class: ClassRead, SortKey: "employee_id"},
		{Domain: "hr", Name: "get_employee", Class: ClassRead, SortKey: "employee_id"},
		{Domain: "hr", Name: "list_time_off", Class: ClassRead, SortKey: "request_id"},
		{
			Domain: "hr", Name: "request_time_off", Class: ClassWrite,
			Summary: "Request time off from {start_date} to {end_date}",
		},
		{
			Domain: "hr", Name: "approve_time_off", Class: ClassWrite,
			ApprovalClass: true,
			ApproverRoles: []string{"hr-write", "manager"},
			AllowedStates: []string{"SUBMITTED"},
			Summary:       "Approve time-off request {request_id}",
		},

		// Finance
		{Domain: "finance", Name: "list_budgets", Class: ClassRead, SortKey: "budget_id"},
		{Domain: "finance", Name: "get_budget", Class: ClassRead, SortKey: "budget_id"},
		{Domain: "finance", Name: "list_expenses", Class: ClassRead, SortKey: "expense_id"},
		{
			Domain: "finance", Name: "approve_budget", Class: ClassWrite,
			ApprovalClass: true,
			ApproverRoles: []string{"finance-write"},
			AllowedStates: []string{"SUBMITTED"},
			Summary:       "Approve budget {budget_id} ({amount})",
		},
		{
			Domain: "finance", Name: "submit_expense", Class: ClassWrite,
			Summary: "Submit expense of {amount} for {description}",
		},
		{
			Domain: "finance", Name: "approve_expense", Class: ClassWrite,
			ApprovalClass: true,
			ApproverRoles: []string{"finance-write"},
			AllowedStates: []string{"SUBMITTED"},
			Summary:       "Approve expense {expense_id} ({amount})",
		},

		// Sales
		{Domain: "sales", Name: "list_opportunities", Class: ClassRead, SortKey: "opportunity_id"},
		{Domain: "sales", Name: "get_opportunity", Class: ClassRead, SortKey: "opportunity_id"},
		{Domain: "sales", Name: "list_customers", Class: ClassRead, SortKey: "customer_id"},
		{
			Domain: "sales", Name: "update_opportunity_stage", Class: ClassWrite,
			AllowedStates: []string{"OPEN", "PROPOSAL", "NEGOTIATION"},
			Summary:       "Move opportunity {opportunity_id} to stage {stage}",
		},
	}
}
