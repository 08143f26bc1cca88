package provider

import (
	"context"
	"net/http"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGrid delivers mail through the SendGrid v3 API
type SendGrid struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSendGrid creates a SendGrid provider
func NewSendGrid(apiKey string, client *http.Client) *SendGrid {
	if client == nil {
		client = http.DefaultClient
	}
	return &SendGrid{
		apiKey:  apiKey,
		baseURL: sendGridURL,
		client:  client,
	}
}

// Name returns the provider name
func (p *SendGrid) Name() string {
	return "sendgrid"
}

// SendGrid's v3 mail send body shares the MailChannels shape
func (p *SendGrid) Send(ctx context.Context, msg *Outbound) error {
	payload := mcPayload{
		Personalizations: []mcPersonalization{{
			To:  []mcAddress{{Email: msg.To}},
			Cc:  toMCAddresses(msg.Cc),
			Bcc: toMCAddresses(msg.Bcc),
		}},
		From:    mcAddress{Email: msg.FromAddress, Name: msg.FromName},
		Subject: msg.Subject,
	}

	if msg.TextBody != "" {
		payload.Content = append(payload.Content, mcContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		payload.Content = append(payload.Content, mcContent{Type: "text/html", Value: msg.HTMLBody})
	}

	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, mcAttachment{
			Content:     att.Content,
			Filename:    att.Filename,
			Type:        att.ContentType,
			Disposition: "attachment",
		})
	}

	return postJSON(ctx, p.client, p.baseURL, "Bearer "+p.apiKey, payload, p.Name())
}
