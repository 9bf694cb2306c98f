package driven

import (
	"context"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// RuleStore persists notification rules.
type RuleStore interface {
	// Create inserts the rule and populates its ID.
	Create(ctx context.Context, rule *model.NotificationRule) error

	// ListByCredential returns all rules for the credential, ordered
	// by ID.
	ListByCredential(ctx context.Context, credentialID int64) ([]model.NotificationRule, error)

	// Delete removes the rule.
	Delete(ctx context.Context, id int64) error

	// MarkFired records when a rule last fired and at what balance.
	// Informational only; re-arming is derived from balance history.
	MarkFired(ctx context.Context, id int64, balance float64, at time.Time) error
}
