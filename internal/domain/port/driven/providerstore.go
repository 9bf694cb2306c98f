package driven

import (
	"context"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// ProviderStore reads provider reference data. Rows are seeded by
// migration; the engine never writes them.
type ProviderStore interface {
	// GetByID returns the provider, or nil when it does not exist.
	GetByID(ctx context.Context, id int64) (*model.Provider, error)

	// GetBySlug returns the provider with the given slug, or nil.
	GetBySlug(ctx context.Context, slug string) (*model.Provider, error)

	// ListAll returns all providers ordered by slug.
	ListAll(ctx context.Context) ([]model.Provider, error)
}
