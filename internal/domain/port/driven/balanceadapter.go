package driven

import (
	"context"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// BalanceAdapter normalizes one provider's balance-reporting API.
//
// FetchBalance performs a single provider call with the decrypted
// secret; implementations must not retain the secret beyond the call.
// Failures are classified into exactly one of the model error types
// (AuthenticationError, RateLimitError, NetworkError,
// UnexpectedResponseError, ConfigurationError) -- this classification
// is the contract the scheduler's retry logic relies on.
type BalanceAdapter interface {
	FetchBalance(ctx context.Context, secret string, metadata map[string]string) (model.BalanceResult, error)
}

// AdapterRegistry maps a provider slug to its adapter. The variant set
// is closed and known at build time; Resolve of an unknown slug fails
// with UnsupportedProviderError and must never fall through silently.
type AdapterRegistry interface {
	Resolve(slug string) (BalanceAdapter, error)
}
