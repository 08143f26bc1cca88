package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const mailChannelsURL = "https://api.mailchannels.net/tx/v1/send"

// MailChannels delivers mail through the MailChannels transactional API
type MailChannels struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewMailChannels creates a MailChannels provider
func NewMailChannels(apiKey string, client *http.Client) *MailChannels {
	if client == nil {
		client = http.DefaultClient
	}
	return &MailChannels{
		apiKey:  apiKey,
		baseURL: mailChannelsURL,
		client:  client,
	}
}

// Name returns the provider name
func (p *MailChannels) Name() string {
	return "mailchannels"
}

type mcAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mcPersonalization struct {
	To  []mcAddress `json:"to"`
	Cc  []mcAddress `json:"cc,omitempty"`
	Bcc []mcAddress `json:"bcc,omitempty"`
}

type mcContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mcAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type mcPayload struct {
	Personalizations []mcPersonalization `json:"personalizations"`
	From             mcAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []mcContent         `json:"content"`
	Attachments      []mcAttachment      `json:"attachments,omitempty"`
}

// Send delivers the message via the MailChannels API
func (p *MailChannels) Send(ctx context.Context, msg *Outbound) error {
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

func toMCAddresses(addrs []string) []mcAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]mcAddress, len(addrs))
	for i, addr := range addrs {
		out[i] = mcAddress{Email: addr}
	}
	return out
}

// postJSON posts a JSON payload with the given Authorization header and
// maps non-2xx responses to an error carrying the response body.
func postJSON(ctx context.Context, client *http.Client, url, authorization string, payload interface{}, name string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", name, resp.StatusCode, string(respBody))
	}

	return nil
}
