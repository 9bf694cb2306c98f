// Package notify implements the NotificationSender port for each
// supported channel type.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotificationSender = (*WebhookSender)(nil)

// WebhookSender delivers alerts as JSON POSTs. The event_id field is
// stable per crossing event so receivers can deduplicate redelivery.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a sender with the given per-request timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

// webhookPayload is the wire form of an alert.
type webhookPayload struct {
	EventID        string  `json:"event_id"`
	CredentialID   int64   `json:"credential_id"`
	CredentialName string  `json:"credential_name"`
	Balance        float64 `json:"balance"`
	IsEstimate     bool    `json:"is_estimate"`
	Threshold      float64 `json:"threshold"`
	Direction      string  `json:"direction"`
	FiredAt        string  `json:"fired_at"`
	Message        string  `json:"message"`
}

// Send posts the alert to the destination URL. Any non-2xx status is
// an error; the notification engine logs it and does not retry.
func (s *WebhookSender) Send(ctx context.Context, destination string, alert model.Alert) error {
	payload := webhookPayload{
		EventID:        alert.EventID,
		CredentialID:   alert.CredentialID,
		CredentialName: alert.CredentialName,
		Balance:        alert.Balance,
		IsEstimate:     alert.IsEstimate,
		Threshold:      alert.Threshold,
		Direction:      string(alert.Direction),
		FiredAt:        alert.FiredAt.UTC().Format(time.RFC3339),
		Message:        FormatAlert(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook to %s: %w", destination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", destination, resp.StatusCode)
	}
	return nil
}

// FormatAlert renders the human-readable alert text shared by all
// channels.
func FormatAlert(alert model.Alert) string {
	comparison := "dropped below"
	if alert.Direction == model.DirectionAbove {
		comparison = "rose above"
	}
	estimate := ""
	if alert.IsEstimate {
		estimate = " (estimated)"
	}
	return fmt.Sprintf("Balance for %q %s the %.2f threshold: current balance %.2f%s.",
		alert.CredentialName, comparison, alert.Threshold, alert.Balance, estimate)
}
