package driven

import (
	"context"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// HistoryStore is the append-only record of balance observations.
// It doubles as the hysteresis state source for the notification
// engine: the "previous" balance is always the most recent prior
// successful observation, never a separately tracked variable.
type HistoryStore interface {
	// Append inserts the observation and populates its ID. History is
	// never mutated in place.
	Append(ctx context.Context, obs *model.BalanceObservation) error

	// Range returns the credential's observations with ObservedAt in
	// [from, to], ordered by timestamp ascending (insertion order
	// breaks ties).
	Range(ctx context.Context, credentialID int64, from, to time.Time) ([]model.BalanceObservation, error)

	// LatestSuccessBefore returns the most recent successful
	// observation appended before the observation with beforeID, or
	// nil when none exists. beforeID of zero means "latest overall".
	LatestSuccessBefore(ctx context.Context, credentialID int64, beforeID int64) (*model.BalanceObservation, error)

	// PruneOlderThan deletes observations observed before cutoff and
	// returns the number removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
