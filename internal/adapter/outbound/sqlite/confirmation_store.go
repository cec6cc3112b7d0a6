// Package sqlite provides a durable confirmation store so pending
// confirmations survive a gateway restart or a client reload.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/identity"
)

const schema = `
CREATE TABLE IF NOT EXISTS confirmations (
	id             TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	owner_json     TEXT NOT NULL,
	domain         TEXT NOT NULL,
	tool           TEXT NOT NULL,
	params_json    TEXT,
	message        TEXT NOT NULL,
	preview_json   TEXT,
	approval_class INTEGER NOT NULL,
	approver_roles TEXT,
	submitter_id   TEXT,
	created_at     INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_confirmations_owner ON confirmations (state, created_at);
`

// ConfirmationStore persists confirmations in a sqlite database.
// The exactly-once PENDING -> terminal transition is a single UPDATE guarded
// by `WHERE state = 'PENDING'`; the rows-affected count decides the winner.
type ConfirmationStore struct {
	db *sql.DB
}

// Compile-time check that ConfirmationStore implements confirm.Store.
var _ confirm.Store = (*ConfirmationStore)(nil)

// Open opens (creating if needed) the confirmation database at path.
func Open(path string) (*ConfirmationStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open confirmation db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent resolutions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create confirmation schema: %w", err)
	}
	return &ConfirmationStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ConfirmationStore) Close() error { return s.db.Close() }

// Create persists a new confirmation in state PENDING.
func (s *ConfirmationStore) Create(ctx context.Context, c *confirm.PendingConfirmation) error {
	ownerJSON, err := json.Marshal(c.Owner)
	if err != nil {
		return fmt.Errorf("encode owner: %w", err)
	}
	paramsJSON, err := json.Marshal(c.Request.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	previewJSON, err := json.Marshal(c.Preview)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO confirmations
			(id, state, owner_json, domain, tool, params_json, message,
			 preview_json, approval_class, approver_roles, submitter_id,
			 created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(confirm.StatePending), string(ownerJSON),
		c.Request.Domain, c.Request.Tool, string(paramsJSON), c.Message,
		string(previewJSON), boolToInt(c.ApprovalClass),
		strings.Join(c.ApproverRoles, ","), c.SubmitterID,
		c.CreatedAt.UnixNano(), c.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert confirmation: %w", err)
	}
	return nil
}

// Get returns a confirmation by id.
func (s *ConfirmationStore) Get(ctx context.Context, id string) (*confirm.PendingConfirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, owner_json, domain, tool, params_json, message,
		       preview_json, approval_class, approver_roles, submitter_id,
		       created_at, expires_at
		FROM confirmations WHERE id = ?`, id)
	return scanConfirmation(row)
}

// Resolve atomically transitions id from PENDING to the given terminal state.
func (s *ConfirmationStore) Resolve(ctx context.Context, id string, state confirm.State) (*confirm.PendingConfirmation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE confirmations SET state = ? WHERE id = ? AND state = ?`,
		string(state), id, string(confirm.StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve confirmation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve confirmation: %w", err)
	}
	if affected == 0 {
		// Lost the race or unknown id; distinguish for the caller.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, confirm.ErrNotFound
		}
		return nil, confirm.ErrNotPending
	}
	return s.Get(ctx, id)
}

// ListByOwner returns the owner's unexpired PENDING confirmations.
func (s *ConfirmationStore) ListByOwner(ctx context.Context, subject string, now time.Time) ([]*confirm.PendingConfirmation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, owner_json, domain, tool, params_json, message,
		       preview_json, approval_class, approver_roles, submitter_id,
		       created_at, expires_at
		FROM confirmations
		WHERE state = ? AND expires_at > ?
		ORDER BY created_at`,
		string(confirm.StatePending), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	defer rows.Close()

	var result []*confirm.PendingConfirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, err
		}
		if c.Owner.Subject == subject {
			result = append(result, c)
		}
	}
	return result, rows.Err()
}

// CountPending returns the number of PENDING confirmations.
func (s *ConfirmationStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM confirmations WHERE state = ?`,
		string(confirm.StatePending),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count confirmations: %w", err)
	}
	return n, nil
}

// Sweep removes terminal confirmations and expired pending ones.
func (s *ConfirmationStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM confirmations WHERE state != ? OR expires_at <= ?`,
		string(confirm.StatePending), now.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep confirmations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep confirmations: %w", err)
	}
	return int(affected), nil
}

// rowScanner is the subset of *sql.Row / *sql.Rows used by scanConfirmation.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfirmation(row rowScanner) (*confirm.PendingConfirmation, error) {
	var (
		c             confirm.PendingConfirmation
		state         string
		ownerJSON     string
		paramsJSON    sql.NullString
		previewJSON   sql.NullString
		approvalClass int
		approverRoles sql.NullString
		submitterID   sql.NullString
		createdAt     int64
		expiresAt     int64
	)
	err := row.Scan(
		&c.ID, &state, &ownerJSON, &c.Request.Domain, &c.Request.Tool,
		&paramsJSON, &c.Message, &previewJSON, &approvalClass,
		&approverRoles, &submitterID, &createdAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, confirm.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan confirmation: %w", err)
	}

	c.State = confirm.State(state)
	var owner identity.UserContext
	if err := json.Unmarshal([]byte(ownerJSON), &owner); err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	c.Owner = owner
	if paramsJSON.Valid && paramsJSON.String != "" && paramsJSON.String != "null" {
		var params map[string]any
		if err := json.Unmarshal([]byte(paramsJSON.String), &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		c.Request.Params = params
	}
	if previewJSON.Valid && previewJSON.String != "" && previewJSON.String != "null" {
		var preview map[string]any
		if err := json.Unmarshal([]byte(previewJSON.String), &preview); err != nil {
			return nil, fmt.Errorf("decode preview: %w", err)
		}
		c.Preview = preview
	}
	c.ApprovalClass = approvalClass != 0
	if approverRoles.Valid && approverRoles.String != "" {
		c.ApproverRoles = strings.Split(approverRoles.String, ",")
	}
	c.SubmitterID = submitterID.String
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
