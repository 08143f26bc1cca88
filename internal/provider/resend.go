package provider

import (
	"context"
	"fmt"
	"net/http"
)

const resendURL = "https://api.resend.com/emails"

// Resend delivers mail through the Resend API
type Resend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewResend creates a Resend provider
func NewResend(apiKey string, client *http.Client) *Resend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resend{
		apiKey:  apiKey,
		baseURL: resendURL,
		client:  client,
	}
}

// Name returns the provider name
func (p *Resend) Name() string {
	return "resend"
}

type resendAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type resendPayload struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Cc          []string           `json:"cc,omitempty"`
	Bcc         []string           `json:"bcc,omitempty"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text,omitempty"`
	HTML        string             `json:"html,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// Send delivers the message via the Resend API
func (p *Resend) Send(ctx context.Context, msg *Outbound) error {
	from := msg.FromAddress
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)
	}

	payload := resendPayload{
		From:    from,
		To:      []string{msg.To},
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Text:    msg.TextBody,
		HTML:    msg.HTMLBody,
	}

	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Content:     att.Content,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	return postJSON(ctx, p.client, p.baseURL, "Bearer "+p.apiKey, payload, p.Name())
}
