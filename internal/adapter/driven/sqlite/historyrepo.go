package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HistoryStore = (*HistoryRepo)(nil)

// HistoryRepo is the SQLite implementation of the append-only
// HistoryStore port.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new HistoryRepo.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Append inserts the observation and populates its ID. Failed
// observations store a NULL balance so a fabricated value can never
// be read back.
func (r *HistoryRepo) Append(ctx context.Context, obs *model.BalanceObservation) error {
	const query = `
		INSERT INTO balance_observations (credential_id, balance, is_estimate, check_error, observed_at)
		VALUES (?, ?, ?, ?, ?)`

	var balance any
	if !obs.Failed() {
		balance = obs.Balance
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		obs.CredentialID, balance, boolToInt(obs.IsEstimate), obs.CheckError, formatTime(obs.ObservedAt))
	if err != nil {
		return fmt.Errorf("append observation for credential %d: %w", obs.CredentialID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("observation insert id: %w", err)
	}
	obs.ID = id
	return nil
}

// Range returns observations in [from, to] ordered by timestamp
// ascending, insertion order breaking ties.
func (r *HistoryRepo) Range(ctx context.Context, credentialID int64, from, to time.Time) ([]model.BalanceObservation, error) {
	const query = `
		SELECT id, credential_id, balance, is_estimate, check_error, observed_at
		FROM balance_observations
		WHERE credential_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC, id ASC`
	rows, err := r.db.Reader.QueryContext(ctx, query, credentialID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("range observations for credential %d: %w", credentialID, err)
	}
	defer rows.Close()

	var observations []model.BalanceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		observations = append(observations, *obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	return observations, nil
}

// LatestSuccessBefore returns the most recent successful observation
// appended before beforeID, or nil when none exists. beforeID of zero
// means "latest overall".
func (r *HistoryRepo) LatestSuccessBefore(ctx context.Context, credentialID int64, beforeID int64) (*model.BalanceObservation, error) {
	query := `
		SELECT id, credential_id, balance, is_estimate, check_error, observed_at
		FROM balance_observations
		WHERE credential_id = ? AND check_error = ''`
	args := []any{credentialID}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	obs, err := scanObservation(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation for credential %d: %w", credentialID, err)
	}
	return obs, nil
}

// PruneOlderThan deletes observations observed before cutoff.
func (r *HistoryRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM balance_observations WHERE observed_at < ?`
	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return deleted, nil
}

func scanObservation(row rowScanner) (*model.BalanceObservation, error) {
	var obs model.BalanceObservation
	var balance sql.NullFloat64
	var isEstimate int
	var observedAt string

	err := row.Scan(&obs.ID, &obs.CredentialID, &balance, &isEstimate, &obs.CheckError, &observedAt)
	if err != nil {
		return nil, err
	}

	if balance.Valid {
		obs.Balance = balance.Float64
	}
	obs.IsEstimate = isEstimate != 0

	if obs.ObservedAt, err = parseTime(observedAt); err != nil {
		return nil, fmt.Errorf("parse observed_at: %w", err)
	}

	return &obs, nil
}
