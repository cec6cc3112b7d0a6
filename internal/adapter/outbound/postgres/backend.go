package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/port/outbound"
	"github.com/tamshai/gateway/pkg/api"
)

// Reserved parameter names a catalog query may reference in its Params list.
// The backend supplies their values: "cursor" is the decoded continuation
// sort key (empty on the first page), "limit" is the soft cap plus one.
const (
	ParamCursor = "cursor"
	ParamLimit  = "limit"
)

// CatalogEntry maps one tool name onto its SQL. The SQL carries no
// authorization logic; the RLS policies of the backend database decide row
// visibility from the session attributes bound before every statement.
type CatalogEntry struct {
	// Tool is the tool name within the backend's domain.
	Tool string
	// Query is the read statement. Placeholders $1..$n are filled from
	// Params in order. Read queries order by the tool's sort key and should
	// page with the reserved "cursor" and "limit" parameters.
	Query string
	// QueryParams names the invocation parameters bound to Query.
	QueryParams []string
	// Exec is the write statement, run only after an approved confirmation.
	Exec string
	// ExecParams names the invocation parameters bound to Exec.
	ExecParams []string
	// InspectQuery snapshots the write's target record without mutating it.
	// It must select `status` and `submitted_by`; all other columns become
	// preview fields.
	InspectQuery string
	// InspectParams names the invocation parameters bound to InspectQuery.
	InspectParams []string
}

// Backend executes one domain's tool catalog against its database.
type Backend struct {
	domain  string
	db      *sql.DB
	catalog map[string]CatalogEntry
	logger  *slog.Logger
}

// Compile-time check that Backend implements outbound.ToolBackend.
var _ outbound.ToolBackend = (*Backend)(nil)

// Open connects to the backend database for a domain using the pgx driver.
func Open(domain, dsn string, entries []CatalogEntry, logger *slog.Logger) (*Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", domain, err)
	}
	return New(domain, db, entries, logger), nil
}

// New builds a Backend over an existing database handle.
func New(domain string, db *sql.DB, entries []CatalogEntry, logger *slog.Logger) *Backend {
	catalog := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		catalog[e.Tool] = e
	}
	return &Backend{domain: domain, db: db, catalog: catalog, logger: logger}
}

// Domain returns the backend's domain name.
func (b *Backend) Domain() string { return b.domain }

// Close closes the underlying database pool.
func (b *Backend) Close() error { return b.db.Close() }

// Read executes a READ tool on an RLS-bound connection.
func (b *Backend) Read(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any, limit int, cursor string) (*outbound.ReadResult, error) {
	entry, ok := b.catalog[toolName]
	if !ok || entry.Query == "" {
		return nil, api.Errorf(api.CodeUnknownTool, "Check the tool name against the domain's tool list.",
			"tool %s is not served by the %s backend", toolName, b.domain)
	}

	args, err := bindParams(entry.QueryParams, params, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", outbound.ErrBackendUnavailable, b.domain, err)
	}
	defer conn.Close()

	if err := Bind(ctx, conn, uc); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, entry.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s/%s query: %w", b.domain, toolName, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s/%s scan: %w", b.domain, toolName, err)
	}
	return &outbound.ReadResult{Rows: result}, nil
}

// Inspect snapshots a write's target record on an RLS-bound connection.
func (b *Backend) Inspect(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*outbound.TargetState, error) {
	entry, ok := b.catalog[toolName]
	if !ok {
		return nil, api.Errorf(api.CodeUnknownTool, "Check the tool name against the domain's tool list.",
			"tool %s is not served by the %s backend", toolName, b.domain)
	}
	if entry.InspectQuery == "" {
		// No state precondition for this write.
		return &outbound.TargetState{Exists: true}, nil
	}

	args, err := bindParams(entry.InspectParams, params, "", 0)
	if err != nil {
		return nil, err
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", outbound.ErrBackendUnavailable, b.domain, err)
	}
	defer conn.Close()

	if err := Bind(ctx, conn, uc); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, entry.InspectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%s/%s inspect: %w", b.domain, toolName, err)
	}
	defer rows.Close()

	scanned, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s/%s inspect scan: %w", b.domain, toolName, err)
	}
	if len(scanned) == 0 {
		return nil, outbound.ErrRecordNotFound
	}
	return targetStateFromRow(scanned[0]), nil
}

// Write executes a WRITE tool on an RLS-bound connection.
func (b *Backend) Write(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*outbound.WriteResult, error) {
	entry, ok := b.catalog[toolName]
	if !ok || entry.Exec == "" {
		return nil, api.Errorf(api.CodeUnknownTool, "Check the tool name against the domain's tool list.",
			"tool %s is not served by the %s backend", toolName, b.domain)
	}

	args, err := bindParams(entry.ExecParams, params, "", 0)
	if err != nil {
		return nil, err
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", outbound.ErrBackendUnavailable, b.domain, err)
	}
	defer conn.Close()

	if err := Bind(ctx, conn, uc); err != nil {
		return nil, err
	}

	res, err := conn.ExecContext(ctx, entry.Exec, args...)
	if err != nil {
		return nil, fmt.Errorf("%s/%s exec: %w", b.domain, toolName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s/%s exec: %w", b.domain, toolName, err)
	}
	if affected == 0 {
		// Either the record vanished or RLS hid it from this identity.
		return nil, outbound.ErrRecordNotFound
	}
	return &outbound.WriteResult{Data: map[string]any{
		"tool":          toolName,
		"rows_affected": affected,
	}}, nil
}

// bindParams resolves the named parameter list into positional args.
func bindParams(names []string, params map[string]any, cursor string, limit int) ([]any, error) {
	args := make([]any, 0, len(names))
	for _, name := range names {
		switch name {
		case ParamCursor:
			args = append(args, cursor)
		case ParamLimit:
			args = append(args, limit)
		default:
			v, ok := params[name]
			if !ok {
				return nil, api.Errorf(api.CodeInvalidRequest,
					fmt.Sprintf("Provide the %q parameter.", name),
					"missing required parameter %q", name)
			}
			args = append(args, v)
		}
	}
	return args, nil
}

// scanRows converts a result set into generic rows keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// targetStateFromRow splits an inspect row into status, submitter and preview.
func targetStateFromRow(row map[string]any) *outbound.TargetState {
	state := &outbound.TargetState{Exists: true, Preview: make(map[string]any)}
	for col, v := range row {
		switch col {
		case "status":
			state.Status = asString(v)
		case "submitted_by":
			state.SubmitterID = asString(v)
		default:
			state.Preview[col] = v
		}
	}
	return state
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
