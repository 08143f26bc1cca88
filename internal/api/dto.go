package api

import (
	"time"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// MessageSummary is the list view of a message
type MessageSummary struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Folder     string    `json:"folder"`
	IsRead     bool      `json:"is_read"`
	IsStarred  bool      `json:"is_starred"`
	SizeBytes  int64     `json:"size_bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// MessageDetail is the full view of a message including bodies and attachments
type MessageDetail struct {
	MessageSummary
	TextBody    string               `json:"text_body"`
	HTMLBody    string               `json:"html_body"`
	Headers     map[string]string    `json:"headers"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// AttachmentResponse is the public view of attachment metadata
type AttachmentResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

// SendRequest is the request body for POST /send
type SendRequest struct {
	To          string                  `json:"to" validate:"required"`
	Cc          []string                `json:"cc,omitempty" validate:"omitempty,max=20"`
	Bcc         []string                `json:"bcc,omitempty" validate:"omitempty,max=20"`
	Subject     string                  `json:"subject"`
	Text        string                  `json:"text,omitempty"`
	HTML        string                  `json:"html,omitempty"`
	Attachments []SendAttachmentRequest `json:"attachments,omitempty" validate:"omitempty,max=10,dive"`
}

// SendAttachmentRequest is an attachment on an outbound message.
// Content is base64 encoded.
type SendAttachmentRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"omitempty,max=255"`
	Content     string `json:"content" validate:"required"`
}

// SendResponse is the response body for an accepted send request
type SendResponse struct {
	QueueID string `json:"queue_id"`
	Status  string `json:"status"`
}

// MarkReadRequest is the request body for PUT /messages/{id}/read
type MarkReadRequest struct {
	IsRead bool `json:"is_read"`
}

// StarResponse reports the new starred state after a toggle
type StarResponse struct {
	ID        string `json:"id"`
	IsStarred bool   `json:"is_starred"`
}

// DeleteResponse reports how a delete request was handled
type DeleteResponse struct {
	ID        string `json:"id"`
	Permanent bool   `json:"permanent"`
}

// ProfileResponse is the response body for GET /profile
type ProfileResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	TotalMessages  int64      `json:"total_messages"`
	UnreadMessages int64      `json:"unread_messages"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
}

// InboundRequest is the payload delivered by the ingestion webhook.
// RawSize is the edge-declared size; the stored size always comes from
// the raw bytes actually received.
type InboundRequest struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Raw     string `json:"raw" validate:"required"`
	RawSize int64  `json:"raw_size,omitempty"`
}

// InboundResponse acknowledges a stored inbound message
type InboundResponse struct {
	MessageID string `json:"message_id"`
}

func toMessageSummary(msg *repository.Message) MessageSummary {
	return MessageSummary{
		ID:         msg.ID.String(),
		MessageID:  msg.MessageID,
		Sender:     msg.Sender,
		Recipient:  msg.Recipient,
		Subject:    msg.Subject,
		Folder:     msg.Folder,
		IsRead:     msg.IsRead,
		IsStarred:  msg.IsStarred,
		SizeBytes:  msg.SizeBytes,
		ReceivedAt: msg.ReceivedAt,
	}
}

func toMessageDetail(msg *repository.Message, attachments []repository.Attachment) MessageDetail {
	detail := MessageDetail{
		MessageSummary: toMessageSummary(msg),
		TextBody:       msg.TextBody,
		HTMLBody:       msg.HTMLBody,
		Headers:        msg.RawHeaders,
		Attachments:    make([]AttachmentResponse, 0, len(attachments)),
	}
	for _, att := range attachments {
		detail.Attachments = append(detail.Attachments, toAttachmentResponse(&att))
	}
	return detail
}

func toAttachmentResponse(att *repository.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          att.ID.String(),
		Filename:    att.Filename,
		ContentType: att.ContentType,
		SizeBytes:   att.SizeBytes,
		Checksum:    att.Checksum,
		CreatedAt:   att.CreatedAt,
	}
}
