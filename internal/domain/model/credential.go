// Package model defines the domain entities for balance monitoring.
package model

import (
	"strconv"
	"time"
)

// Credential is a stored provider secret plus the metadata needed to
// check its balance. The secret is held encrypted at rest; only the
// vault can recover the plaintext, and only for the duration of a
// single adapter call.
type Credential struct {
	ID         int64
	UserID     int64 // Opaque owner reference; account management lives outside the engine.
	ProviderID int64
	Name       string

	// EncryptedSecret is the vault ciphertext. The plaintext never
	// appears on this struct.
	EncryptedSecret string

	// Metadata carries provider-specific scalars, e.g. "total_grant"
	// for providers that only report usage.
	Metadata map[string]string

	Active bool

	// NeedsAttention is set when a check fails permanently for a
	// user-correctable reason (revoked key, missing metadata).
	// Periodic checks are suppressed until the credential is edited
	// or a manual check is requested.
	NeedsAttention bool
	LastError      string

	// LastKnownBalance and LastCheckedAt back the stale-balance
	// display for credentials whose latest check failed.
	LastKnownBalance *float64
	LastCheckedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MetadataKeyTotalGrant is the metadata key holding the manually
// supplied grant amount for usage-estimating providers.
const MetadataKeyTotalGrant = "total_grant"

// MetadataFloat returns the named metadata value parsed as a float.
// ok is false when the key is absent or the value is not numeric.
func (c *Credential) MetadataFloat(key string) (float64, bool) {
	v, exists := c.Metadata[key]
	if !exists {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
