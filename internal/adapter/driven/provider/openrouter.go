package provider

import (
	"context"
	"net/http"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BalanceAdapter = (*OpenRouterAdapter)(nil)

const openRouterBaseURL = "https://openrouter.ai"

// OpenRouterAdapter fetches remaining credit from the OpenRouter
// credits endpoint. OpenRouter reports the balance directly, so
// results are exact.
type OpenRouterAdapter struct {
	client  *http.Client
	baseURL string
}

// NewOpenRouterAdapter creates an adapter against the production API.
func NewOpenRouterAdapter() *OpenRouterAdapter {
	return &OpenRouterAdapter{client: defaultHTTPClient(), baseURL: openRouterBaseURL}
}

// NewOpenRouterAdapterWithHTTPClient creates an adapter with a custom
// http.Client and base URL, for injecting an httptest server.
func NewOpenRouterAdapterWithHTTPClient(client *http.Client, baseURL string) *OpenRouterAdapter {
	return &OpenRouterAdapter{client: client, baseURL: baseURL}
}

type openRouterCreditsResponse struct {
	Credits *float64 `json:"credits"`
}

// FetchBalance calls GET /api/v1/credits and returns the reported
// credit balance with IsEstimate = false.
func (a *OpenRouterAdapter) FetchBalance(ctx context.Context, secret string, _ map[string]string) (model.BalanceResult, error) {
	var body openRouterCreditsResponse
	if err := getJSON(ctx, a.client, "openrouter", a.baseURL+"/api/v1/credits", secret, &body); err != nil {
		return model.BalanceResult{}, err
	}

	if body.Credits == nil {
		return model.BalanceResult{}, &model.UnexpectedResponseError{
			Provider: "openrouter",
			Message:  "credits field missing from response",
		}
	}

	return model.BalanceResult{Balance: *body.Credits, IsEstimate: false}, nil
}
