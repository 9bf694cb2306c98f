package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RuleStore = (*RuleRepo)(nil)

// RuleRepo is the SQLite implementation of the RuleStore port.
type RuleRepo struct {
	db *DB
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// Create inserts the rule and populates its ID.
func (r *RuleRepo) Create(ctx context.Context, rule *model.NotificationRule) error {
	now := time.Now().UTC()
	const query = `
		INSERT INTO notification_rules (credential_id, threshold, direction, channel, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.Writer.ExecContext(ctx, query,
		rule.CredentialID, rule.Threshold, string(rule.Direction), string(rule.Channel), rule.Address, formatTime(now))
	if err != nil {
		return fmt.Errorf("create rule for credential %d: %w", rule.CredentialID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rule insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = now
	return nil
}

// ListByCredential returns all rules for the credential ordered by ID.
func (r *RuleRepo) ListByCredential(ctx context.Context, credentialID int64) ([]model.NotificationRule, error) {
	const query = `
		SELECT id, credential_id, threshold, direction, channel, address, last_fired_at, last_fired_balance, created_at
		FROM notification_rules
		WHERE credential_id = ?
		ORDER BY id`
	rows, err := r.db.Reader.QueryContext(ctx, query, credentialID)
	if err != nil {
		return nil, fmt.Errorf("list rules for credential %d: %w", credentialID, err)
	}
	defer rows.Close()

	var rules []model.NotificationRule
	for rows.Next() {
		var rule model.NotificationRule
		var direction, channel, createdAt string
		var lastFiredAt sql.NullString
		var lastFiredBalance sql.NullFloat64

		err := rows.Scan(&rule.ID, &rule.CredentialID, &rule.Threshold, &direction,
			&channel, &rule.Address, &lastFiredAt, &lastFiredBalance, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}

		rule.Direction = model.RuleDirection(direction)
		rule.Channel = model.Channel(channel)

		if lastFiredAt.Valid && lastFiredAt.String != "" {
			t, err := parseTime(lastFiredAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_fired_at: %w", err)
			}
			rule.LastFiredAt = &t
		}
		if lastFiredBalance.Valid {
			rule.LastFiredBalance = &lastFiredBalance.Float64
		}
		if rule.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return rules, nil
}

// Delete removes the rule.
func (r *RuleRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM notification_rules WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	return nil
}

// MarkFired records the most recent firing for display.
func (r *RuleRepo) MarkFired(ctx context.Context, id int64, balance float64, at time.Time) error {
	const query = `UPDATE notification_rules SET last_fired_at = ?, last_fired_balance = ? WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), balance, id); err != nil {
		return fmt.Errorf("mark rule %d fired: %w", id, err)
	}
	return nil
}
