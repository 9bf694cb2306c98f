package model

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError indicates user-correctable bad input, such as a
// missing total_grant for an estimating provider. Never retried
// automatically.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error for %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// AuthenticationError indicates the provider rejected the credential.
// Permanent: the credential is flagged for attention and automatic
// checks are suppressed until it is edited.
type AuthenticationError struct {
	Provider string
	Message  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("provider %q rejected credential: %s", e.Provider, e.Message)
}

// RateLimitError indicates the provider throttled the request.
// Transient; RetryAfter carries the provider's backoff hint when one
// was supplied, zero otherwise.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limited (retry after %s): %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limited: %s", e.Provider, e.Message)
}

// NetworkError indicates a transient transport or server-side failure.
type NetworkError struct {
	Provider string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("provider %q network error: %v", e.Provider, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// UnexpectedResponseError indicates the provider answered with a shape
// or status the adapter does not understand. Permanent until the
// adapter code changes.
type UnexpectedResponseError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *UnexpectedResponseError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q unexpected response (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q unexpected response: %s", e.Provider, e.Message)
}

func (e *UnexpectedResponseError) Unwrap() error { return e.Cause }

// UnsupportedProviderError indicates a provider slug with no registered
// adapter. Reaching this outside startup verification is a bug.
type UnsupportedProviderError struct {
	Slug string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("no adapter registered for provider slug %q", e.Slug)
}

// IsTransient reports whether err should be retried with backoff.
// Only network and rate-limit failures qualify; everything else is
// permanent for the current cycle.
func IsTransient(err error) bool {
	var netErr *NetworkError
	var rateErr *RateLimitError
	return errors.As(err, &netErr) || errors.As(err, &rateErr)
}

// IsUserCorrectable reports whether err should flag the credential for
// attention and suppress further automatic checks.
func IsUserCorrectable(err error) bool {
	var authErr *AuthenticationError
	var cfgErr *ConfigurationError
	return errors.As(err, &authErr) || errors.As(err, &cfgErr)
}

// RetryAfterHint extracts the provider's backoff hint from err, or
// zero when none was supplied.
func RetryAfterHint(err error) time.Duration {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
