package postgres

// DefaultCatalog returns the SQL catalog for one of the built-in domains.
// Every read pages on the tool's sort key via the reserved cursor/limit
// parameters; none of the queries filter by identity, since row visibility
// is the RLS policies' job.
func DefaultCatalog(domain string) []CatalogEntry {
	switch domain {
	case "hr":
		return hrCatalog()
	case "finance":
		return financeCatalog()
	case "sales":
		return salesCatalog()
	default:
		return nil
	}
}

func hrCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Tool: "list_employees",
			Query: `SELECT employee_id, name, email, department, title
				FROM employees
				WHERE ($1 = '' OR employee_id > $1)
				ORDER BY employee_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "get_employee",
			Query: `SELECT employee_id, name, email, department, title, manager_id, hire_date
				FROM employees
				WHERE employee_id = $1
				ORDER BY employee_id
				LIMIT $2`,
			QueryParams: []string{"employee_id", ParamLimit},
		},
		{
			Tool: "list_time_off",
			Query: `SELECT request_id, employee_id, start_date, end_date, status
				FROM time_off_requests
				WHERE ($1 = '' OR request_id > $1)
				ORDER BY request_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "request_time_off",
			Exec: `INSERT INTO time_off_requests (employee_id, start_date, end_date, status, submitted_by)
				VALUES ($1, $2, $3, 'SUBMITTED', $1)`,
			ExecParams: []string{"employee_id", "start_date", "end_date"},
		},
		{
			Tool: "approve_time_off",
			Exec: `UPDATE time_off_requests SET status = 'APPROVED'
				WHERE request_id = $1 AND status = 'SUBMITTED'`,
			ExecParams: []string{"request_id"},
			InspectQuery: `SELECT status, submitted_by, employee_id, start_date, end_date
				FROM time_off_requests
				WHERE request_id = $1`,
			InspectParams: []string{"request_id"},
		},
	}
}

func financeCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Tool: "list_budgets",
			Query: `SELECT budget_id, department, fiscal_year, amount, status
				FROM budgets
				WHERE ($1 = '' OR budget_id > $1)
				ORDER BY budget_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "get_budget",
			Query: `SELECT budget_id, department, fiscal_year, amount, status, submitted_by
				FROM budgets
				WHERE budget_id = $1
				ORDER BY budget_id
				LIMIT $2`,
			QueryParams: []string{"budget_id", ParamLimit},
		},
		{
			Tool: "list_expenses",
			Query: `SELECT expense_id, employee_id, amount, description, status
				FROM expenses
				WHERE ($1 = '' OR expense_id > $1)
				ORDER BY expense_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "approve_budget",
			Exec: `UPDATE budgets SET status = 'APPROVED'
				WHERE budget_id = $1 AND status = 'SUBMITTED'`,
			ExecParams: []string{"budget_id"},
			InspectQuery: `SELECT status, submitted_by, department, fiscal_year, amount
				FROM budgets
				WHERE budget_id = $1`,
			InspectParams: []string{"budget_id"},
		},
		{
			Tool: "submit_expense",
			Exec: `INSERT INTO expenses (employee_id, amount, description, status, submitted_by)
				VALUES ($1, $2, $3, 'SUBMITTED', $1)`,
			ExecParams: []string{"employee_id", "amount", "description"},
		},
		{
			Tool: "approve_expense",
			Exec: `UPDATE expenses SET status = 'APPROVED'
				WHERE expense_id = $1 AND status = 'SUBMITTED'`,
			ExecParams: []string{"expense_id"},
			InspectQuery: `SELECT status, submitted_by, employee_id, amount, description
				FROM expenses
				WHERE expense_id = $1`,
			InspectParams: []string{"expense_id"},
		},
	}
}

func salesCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Tool: "list_opportunities",
			Query: `SELECT opportunity_id, customer_id, name, stage, value, owner_id
				FROM opportunities
				WHERE ($1 = '' OR opportunity_id > $1)
				ORDER BY opportunity_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "get_opportunity",
			Query: `SELECT opportunity_id, customer_id, name, stage, value, owner_id, updated_at
				FROM opportunities
				WHERE opportunity_id = $1
				ORDER BY opportunity_id
				LIMIT $2`,
			QueryParams: []string{"opportunity_id", ParamLimit},
		},
		{
			Tool: "list_customers",
			Query: `SELECT customer_id, name, industry, region, account_owner
				FROM customers
				WHERE ($1 = '' OR customer_id > $1)
				ORDER BY customer_id
				LIMIT $2`,
			QueryParams: []string{ParamCursor, ParamLimit},
		},
		{
			Tool: "update_opportunity_stage",
			Exec: `UPDATE opportunities SET stage = $2, updated_at = now()
				WHERE opportunity_id = $1`,
			ExecParams: []string{"opportunity_id", "stage"},
			InspectQuery: `SELECT stage AS status, owner_id AS submitted_by, customer_id, name, value
				FROM opportunities
				WHERE opportunity_id = $1`,
			InspectParams: []string{"opportunity_id"},
		},
	}
}
