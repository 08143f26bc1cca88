// Package inbound turns raw email delivered by the ingestion webhook into
// stored messages and attachments.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/mailparse"
	"github.com/stackmail/mailbox/backend/internal/metrics"
	"github.com/stackmail/mailbox/backend/internal/repository"
	"github.com/stackmail/mailbox/backend/internal/storage"
)

// Inbound processing errors
var (
	ErrRecipientUnknown = errors.New("recipient is not a registered mailbox")
)

// allowedContentTypes are the attachment types accepted for storage.
// Anything else is dropped during persistence.
var allowedContentTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// Envelope is a raw inbound email as handed over by the ingestion webhook
type Envelope struct {
	From string
	To   string
	Raw  string
}

// UserDirectory resolves recipient addresses to mailbox users
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
}

// MessageStore persists parsed messages
type MessageStore interface {
	Create(ctx context.Context, msg *repository.Message) error
}

// AttachmentStore persists attachment metadata
type AttachmentStore interface {
	CreateBatch(ctx context.Context, attachments []repository.Attachment) error
}

// ObjectStore uploads attachment content
type ObjectStore interface {
	Put(ctx context.Context, key string, content []byte, contentType, filename string) error
}

// Processor ingests inbound email for registered mailboxes
type Processor struct {
	parser            mailparse.Parser
	users             UserDirectory
	messages          MessageStore
	attachments       AttachmentStore
	objects           ObjectStore
	maxAttachmentSize int64
	logger            *slog.Logger
}

// Config holds processor dependencies
type Config struct {
	Parser            mailparse.Parser
	Users             UserDirectory
	Messages          MessageStore
	Attachments       AttachmentStore
	Objects           ObjectStore
	MaxAttachmentSize int64
	Logger            *slog.Logger
}

// NewProcessor creates an inbound processor
func NewProcessor(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := cfg.MaxAttachmentSize
	if maxSize == 0 {
		maxSize = 10 * 1024 * 1024
	}
	return &Processor{
		parser:            cfg.Parser,
		users:             cfg.Users,
		messages:          cfg.Messages,
		attachments:       cfg.Attachments,
		objects:           cfg.Objects,
		maxAttachmentSize: maxSize,
		logger:            logger,
	}
}

// Process parses the envelope, stores the message for the recipient, and
// uploads any acceptable attachments
func (p *Processor) Process(ctx context.Context, env *Envelope) (*repository.Message, error) {
	recipient := strings.ToLower(strings.TrimSpace(env.To))

	user, err := p.users.GetByEmail(ctx, recipient)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			metrics.InboundMessagesTotal.WithLabelValues("unknown_recipient").Inc()
			return nil, ErrRecipientUnknown
		}
		return nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}

	content := p.parser.Parse(env.Raw)

	now := time.Now()
	msg := &repository.Message{
		ID:         uuid.New(),
		UserID:     user.ID,
		MessageID:  resolveMessageID(content.Headers, now),
		Sender:     senderAddress(env, content.Headers),
		Recipient:  recipient,
		Subject:    content.Headers["Subject"],
		TextBody:   content.TextBody,
		HTMLBody:   content.HTMLBody,
		RawHeaders: content.Headers,
		Folder:     repository.FolderInbox,
		SizeBytes:  int64(len(env.Raw)),
		ReceivedAt: now,
		CreatedAt:  now,
	}

	if err := p.messages.Create(ctx, msg); err != nil {
		metrics.InboundMessagesTotal.WithLabelValues("store_failed").Inc()
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if rows := p.storeAttachments(ctx, msg, content.Attachments); len(rows) > 0 {
		if err := p.attachments.CreateBatch(ctx, rows); err != nil {
			// The message itself is already stored; losing attachment
			// metadata is logged but not fatal.
			p.logger.Error("failed to store attachment metadata",
				slog.String("message_id", msg.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.InboundMessagesTotal.WithLabelValues("stored").Inc()
	p.logger.Info("inbound message stored",
		slog.String("message_id", msg.ID.String()),
		slog.String("recipient", recipient),
		slog.Int("attachments", len(content.Attachments)),
	)

	return msg, nil
}

// storeAttachments uploads acceptable attachments and returns their
// metadata rows
func (p *Processor) storeAttachments(ctx context.Context, msg *repository.Message, attachments []mailparse.Attachment) []repository.Attachment {
	var rows []repository.Attachment

	for _, att := range attachments {
		if !allowedContentTypes[strings.ToLower(att.ContentType)] {
			p.logger.Warn("skipping disallowed attachment type",
				slog.String("message_id", msg.ID.String()),
				slog.String("filename", att.Filename),
				slog.String("content_type", att.ContentType),
			)
			continue
		}

		if att.SizeBytes > p.maxAttachmentSize {
			p.logger.Warn("skipping oversized attachment",
				slog.String("message_id", msg.ID.String()),
				slog.String("filename", att.Filename),
				slog.Int64("size_bytes", att.SizeBytes),
			)
			continue
		}

		key := storage.BuildAttachmentKey(msg.ID.String(), att.Filename)
		if err := p.objects.Put(ctx, key, att.Content, att.ContentType, att.Filename); err != nil {
			p.logger.Error("failed to upload attachment",
				slog.String("message_id", msg.ID.String()),
				slog.String("filename", att.Filename),
				slog.String("error", err.Error()),
			)
			continue
		}

		rows = append(rows, repository.Attachment{
			ID:          uuid.New(),
			MessageID:   msg.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			SizeBytes:   att.SizeBytes,
			Checksum:    att.Checksum,
			StorageKey:  key,
			CreatedAt:   time.Now(),
		})
		metrics.InboundAttachmentsStored.Inc()
	}

	return rows
}

// resolveMessageID uses the Message-ID header when present, otherwise a
// timestamp-based identifier
func resolveMessageID(headers map[string]string, now time.Time) string {
	if id := strings.Trim(headers["Message-ID"], "<> "); id != "" {
		return id
	}
	return fmt.Sprintf("%d-%06d", now.UnixMilli(), rand.Intn(1000000))
}

// senderAddress prefers the envelope sender, falling back to the From header
func senderAddress(env *Envelope, headers map[string]string) string {
	if env.From != "" {
		return env.From
	}
	return headers["From"]
}
