// Package provider implements outbound email delivery through third-party
// HTTP APIs. Exactly one provider is selected at startup based on which
// API keys are configured.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stackmail/mailbox/backend/internal/config"
)

// ErrNoProviderConfigured is returned when no provider API key is set
var ErrNoProviderConfigured = errors.New("no email provider configured")

// OutboundAttachment is a file attached to an outbound message.
// Content is base64 encoded, as the provider APIs expect.
type OutboundAttachment struct {
	Filename    string
	ContentType string
	Content     string
}

// Outbound is a fully-resolved message ready for delivery
type Outbound struct {
	FromAddress string
	FromName    string
	To          string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []OutboundAttachment
}

// Provider delivers outbound messages
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Outbound) error
}

// Select picks the delivery provider by static precedence:
// MailChannels, then Resend, then SendGrid.
func Select(cfg *config.ProviderConfig) (Provider, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	switch {
	case cfg.MailChannelsAPIKey != "":
		return NewMailChannels(cfg.MailChannelsAPIKey, client), nil
	case cfg.ResendAPIKey != "":
		return NewResend(cfg.ResendAPIKey, client), nil
	case cfg.SendGridAPIKey != "":
		return NewSendGrid(cfg.SendGridAPIKey, client), nil
	default:
		return nil, ErrNoProviderConfigured
	}
}
