package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BalanceAdapter = (*OpenAIAdapter)(nil)

const openAIBaseURL = "https://api.openai.com"

// OpenAIAdapter estimates remaining balance for OpenAI keys. OpenAI
// does not expose remaining credit, only cumulative usage, so the
// balance is computed as total_grant - usage and every result is an
// estimate. The total grant must be supplied in credential metadata.
type OpenAIAdapter struct {
	client  *http.Client
	baseURL string
}

// NewOpenAIAdapter creates an adapter against the production API.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{client: defaultHTTPClient(), baseURL: openAIBaseURL}
}

// NewOpenAIAdapterWithHTTPClient creates an adapter with a custom
// http.Client and base URL, for injecting an httptest server.
func NewOpenAIAdapterWithHTTPClient(client *http.Client, baseURL string) *OpenAIAdapter {
	return &OpenAIAdapter{client: client, baseURL: baseURL}
}

type openAIUsageResponse struct {
	// TotalUsage is reported in cents.
	TotalUsage float64 `json:"total_usage"`
}

// FetchBalance estimates the remaining balance as
// metadata.total_grant minus the usage reported by the usage
// endpoint. A missing total_grant is a ConfigurationError, not a
// retryable failure. When the usage endpoint is absent (404), the
// grant itself is returned as the estimate; usage has to be treated
// as unknown rather than zeroing out the balance.
func (a *OpenAIAdapter) FetchBalance(ctx context.Context, secret string, metadata map[string]string) (model.BalanceResult, error) {
	grant, err := totalGrant(metadata)
	if err != nil {
		return model.BalanceResult{}, err
	}

	var body openAIUsageResponse
	if err := getJSON(ctx, a.client, "openai", a.baseURL+"/v1/usage", secret, &body); err != nil {
		var respErr *model.UnexpectedResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return model.BalanceResult{Balance: grant, IsEstimate: true}, nil
		}
		return model.BalanceResult{}, err
	}

	remaining := grant - body.TotalUsage/100 // cents to dollars
	if remaining < 0 {
		remaining = 0
	}

	return model.BalanceResult{Balance: remaining, IsEstimate: true}, nil
}

// totalGrant reads the required total_grant metadata value.
func totalGrant(metadata map[string]string) (float64, error) {
	cred := model.Credential{Metadata: metadata}
	grant, ok := cred.MetadataFloat(model.MetadataKeyTotalGrant)
	if !ok {
		return 0, &model.ConfigurationError{
			Field:   model.MetadataKeyTotalGrant,
			Message: "openai credentials require a numeric total_grant metadata value",
		}
	}
	return grant, nil
}
