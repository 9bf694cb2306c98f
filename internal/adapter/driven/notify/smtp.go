package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotificationSender = (*SMTPSender)(nil)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers alerts by email through a single SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send emails the alert to the destination address. The context is
// not threaded through net/smtp; the relay connection uses the
// package's own dial timeout behavior.
func (s *SMTPSender) Send(_ context.Context, destination string, alert model.Alert) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := buildEmail(s.cfg.From, destination, alert)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := s.send(addr, auth, s.cfg.From, []string{destination}, msg); err != nil {
		return fmt.Errorf("send alert email to %s: %w", destination, err)
	}
	return nil
}

// buildEmail renders the RFC 5322 message body.
func buildEmail(from, to string, alert model.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: QuotaWatch: balance alert for %s\r\n", alert.CredentialName)
	fmt.Fprintf(&b, "Date: %s\r\n", alert.FiredAt.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@quotawatch>\r\n", alert.EventID)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(FormatAlert(alert))
	b.WriteString("\r\n")
	return []byte(b.String())
}
