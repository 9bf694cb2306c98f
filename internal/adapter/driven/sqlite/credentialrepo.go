package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore
// port. Secrets arrive and leave as vault ciphertext; this repo never
// sees plaintext.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create inserts the credential and populates ID and CreatedAt.
func (r *CredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	metadata, err := encodeMetadata(cred.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO credentials (user_id, provider_id, name, secret_encrypted, metadata, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.Writer.ExecContext(ctx, query,
		cred.UserID, cred.ProviderID, cred.Name, cred.EncryptedSecret,
		metadata, boolToInt(cred.Active), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("create credential %q: %w", cred.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("credential insert id: %w", err)
	}
	cred.ID = id
	cred.CreatedAt = now
	cred.UpdatedAt = now
	return nil
}

const credentialColumns = `id, user_id, provider_id, name, secret_encrypted, metadata, active,
	needs_attention, last_error, last_known_balance, last_checked_at, created_at, updated_at`

// GetByID returns the credential, or nil when it does not exist.
func (r *CredentialRepo) GetByID(ctx context.Context, id int64) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`
	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}
	return cred, nil
}

// ListActive returns all active credentials ordered by ID.
func (r *CredentialRepo) ListActive(ctx context.Context) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE active = 1 ORDER BY id`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Update replaces the editable fields and clears needs-attention,
// re-enabling automatic checks for the credential.
func (r *CredentialRepo) Update(ctx context.Context, cred *model.Credential) error {
	metadata, err := encodeMetadata(cred.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	const query = `
		UPDATE credentials
		SET name = ?, secret_encrypted = ?, metadata = ?, active = ?,
		    needs_attention = 0, last_error = '', updated_at = ?
		WHERE id = ?`
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.Name, cred.EncryptedSecret, metadata, boolToInt(cred.Active),
		formatTime(time.Now()), cred.ID,
	)
	if err != nil {
		return fmt.Errorf("update credential %d: %w", cred.ID, err)
	}
	return nil
}

// Delete removes the credential. Observations and notification rules
// cascade via foreign keys.
func (r *CredentialRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM credentials WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete credential %d: %w", id, err)
	}
	return nil
}

// RecordCheckSuccess updates the last-known balance and clears any
// needs-attention state.
func (r *CredentialRepo) RecordCheckSuccess(ctx context.Context, id int64, balance float64, at time.Time) error {
	const query = `
		UPDATE credentials
		SET last_known_balance = ?, last_checked_at = ?,
		    needs_attention = 0, last_error = '', updated_at = ?
		WHERE id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, balance, formatTime(at), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("record check success for credential %d: %w", id, err)
	}
	return nil
}

// RecordCheckFailure records the failure; the last known balance is
// left untouched so the credential shows its stale value. The
// needs-attention flag only ever latches on here: a later
// non-correctable failure must not clear a flag set by an earlier
// one. Clearing happens through Update or RecordCheckSuccess.
func (r *CredentialRepo) RecordCheckFailure(ctx context.Context, id int64, checkErr string, needsAttention bool, at time.Time) error {
	const query = `
		UPDATE credentials
		SET last_error = ?,
		    needs_attention = CASE WHEN ? THEN 1 ELSE needs_attention END,
		    last_checked_at = ?, updated_at = ?
		WHERE id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, checkErr, boolToInt(needsAttention), formatTime(at), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("record check failure for credential %d: %w", id, err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	var cred model.Credential
	var metadata string
	var active, needsAttention int
	var lastBalance sql.NullFloat64
	var lastChecked sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&cred.ID, &cred.UserID, &cred.ProviderID, &cred.Name,
		&cred.EncryptedSecret, &metadata, &active, &needsAttention,
		&cred.LastError, &lastBalance, &lastChecked, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	cred.Active = active != 0
	cred.NeedsAttention = needsAttention != 0

	if err := json.Unmarshal([]byte(metadata), &cred.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if lastBalance.Valid {
		cred.LastKnownBalance = &lastBalance.Float64
	}
	if lastChecked.Valid && lastChecked.String != "" {
		t, err := parseTime(lastChecked.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_checked_at: %w", err)
		}
		cred.LastCheckedAt = &t
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
