package model

import "time"

// RuleDirection is the comparison side of a notification threshold.
type RuleDirection string

const (
	// DirectionBelow fires when balance drops below the threshold.
	DirectionBelow RuleDirection = "below"
	// DirectionAbove fires when balance rises above the threshold.
	DirectionAbove RuleDirection = "above"
)

// Channel identifies a notification delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// NotificationRule defines when and where to alert for a credential.
// A rule fires at most once per threshold crossing: after firing it
// stays silent until the balance is observed back on the other side.
type NotificationRule struct {
	ID           int64
	CredentialID int64
	Threshold    float64
	Direction    RuleDirection
	Channel      Channel
	Address      string

	// LastFiredAt and LastFiredBalance record the most recent alert
	// for display. They are not the hysteresis state; that comes from
	// balance history.
	LastFiredAt      *time.Time
	LastFiredBalance *float64

	CreatedAt time.Time
}

// Breached reports whether the given balance is on the alerting side
// of the rule's threshold.
func (r NotificationRule) Breached(balance float64) bool {
	if r.Direction == DirectionAbove {
		return balance > r.Threshold
	}
	return balance < r.Threshold
}

// Alert is the payload handed to a notification channel sender.
// EventID is unique per crossing event so downstream consumers can
// deduplicate at-least-once deliveries.
type Alert struct {
	EventID        string
	CredentialID   int64
	CredentialName string
	Balance        float64
	IsEstimate     bool
	Threshold      float64
	Direction      RuleDirection
	FiredAt        time.Time
}
