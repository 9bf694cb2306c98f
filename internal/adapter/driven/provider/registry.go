package provider

import (
	"context"
	"fmt"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AdapterRegistry = (*Registry)(nil)

// Registry dispatches provider slugs to adapter instances. The
// variant set is closed: adding a provider means adding a slug
// constant, a case to Resolve, and an adapter type. VerifyAll makes
// a gap fail at startup instead of surfacing mid-check.
type Registry struct {
	openRouter *OpenRouterAdapter
	openAI     *OpenAIAdapter
}

// NewRegistry constructs the registry with production adapters.
func NewRegistry() *Registry {
	return &Registry{
		openRouter: NewOpenRouterAdapter(),
		openAI:     NewOpenAIAdapter(),
	}
}

// Resolve returns the adapter for the given slug, or
// UnsupportedProviderError for a slug outside the closed set.
func (r *Registry) Resolve(slug string) (driven.BalanceAdapter, error) {
	switch slug {
	case model.SlugOpenRouter:
		return r.openRouter, nil
	case model.SlugOpenAI:
		return r.openAI, nil
	default:
		return nil, &model.UnsupportedProviderError{Slug: slug}
	}
}

// VerifyAll resolves every provider in the store and fails when any
// seeded slug has no adapter. Run once at startup so a registry gap
// aborts the boot rather than a scheduled check.
func (r *Registry) VerifyAll(ctx context.Context, providers driven.ProviderStore) error {
	all, err := providers.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}

	for _, p := range all {
		if _, err := r.Resolve(p.Slug); err != nil {
			return fmt.Errorf("provider %q has no adapter: %w", p.Slug, err)
		}
	}
	return nil
}
