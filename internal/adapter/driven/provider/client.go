// Package provider implements the BalanceAdapter port for each
// supported platform, normalizing heterogeneous balance-reporting
// APIs behind a single contract.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// defaultHTTPClient has no client-side timeout; call deadlines come
// from the context the scheduler derives per attempt.
func defaultHTTPClient() *http.Client {
	return &http.Client{}
}

// getJSON performs an authenticated GET and decodes the 2xx body into
// out. Failures are classified into the model error taxonomy;
// adapters that treat a specific status specially can inspect the
// returned UnexpectedResponseError (see the OpenAI adapter's 404
// handling).
func getJSON(ctx context.Context, client *http.Client, providerName, url, secret string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &model.UnexpectedResponseError{Provider: providerName, Message: "build request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &model.NetworkError{Provider: providerName, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a bounded prefix of the body for error context.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(providerName, resp, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.UnexpectedResponseError{Provider: providerName, Message: "decode response", Cause: err}
	}
	return nil
}

// classifyStatus maps a non-2xx response to exactly one error class.
// 401/403 are permanent authentication failures, 429 is a rate limit
// with an optional Retry-After hint, 5xx is treated as transient, and
// everything else is an unexpected response.
func classifyStatus(providerName string, resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &model.AuthenticationError{Provider: providerName, Message: body}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &model.RateLimitError{
			Provider:   providerName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    body,
		}
	case resp.StatusCode >= 500:
		return &model.NetworkError{
			Provider: providerName,
			Cause:    fmt.Errorf("server error (status %d): %s", resp.StatusCode, body),
		}
	default:
		return &model.UnexpectedResponseError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    body,
		}
	}
}

// parseRetryAfter reads a Retry-After header in delta-seconds form.
// HTTP-date form is rare on these APIs and is ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
