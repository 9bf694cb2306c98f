// Package driven defines the driven ports the engine depends on:
// persistence, balance adapters, and notification channel senders.
package driven

import (
	"context"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// CredentialStore persists credentials. Secrets cross this boundary
// only as vault ciphertext; decryption happens in the application
// layer immediately before an adapter call.
type CredentialStore interface {
	// Create inserts the credential and populates its ID and CreatedAt.
	Create(ctx context.Context, cred *model.Credential) error

	// GetByID returns the credential, or nil when it does not exist.
	GetByID(ctx context.Context, id int64) (*model.Credential, error)

	// ListActive returns all credentials with the active flag set,
	// ordered by ID.
	ListActive(ctx context.Context) ([]model.Credential, error)

	// Update replaces name, metadata, encrypted secret, and active
	// flag, and clears the needs-attention state (editing a credential
	// re-enables automatic checks).
	Update(ctx context.Context, cred *model.Credential) error

	// Delete removes the credential. Notification rules and history
	// referencing it are invalidated by the store.
	Delete(ctx context.Context, id int64) error

	// RecordCheckSuccess updates last-known balance and checked-at,
	// and clears any needs-attention state.
	RecordCheckSuccess(ctx context.Context, id int64, balance float64, at time.Time) error

	// RecordCheckFailure updates the last error and checked-at. When
	// needsAttention is true, automatic checks are suppressed until
	// the credential is edited or manually checked; a false value
	// leaves any existing flag in place.
	RecordCheckFailure(ctx context.Context, id int64, checkErr string, needsAttention bool, at time.Time) error
}
