// Package sendqueue drains the outbound send queue and dispatches messages
// through the configured delivery provider.
package sendqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/metrics"
	"github.com/stackmail/mailbox/backend/internal/provider"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

// maxAttempts is the total number of delivery attempts before an item is
// marked failed.
const maxAttempts = 3

// QueueRepository is the subset of send queue persistence the processor needs
type QueueRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]repository.SendQueueItem, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
}

// MessageCreator records delivered mail in the sender's sent folder
type MessageCreator interface {
	Create(ctx context.Context, msg *repository.Message) error
}

// Processor claims pending queue items and hands them to the provider
type Processor struct {
	queue       QueueRepository
	messages    MessageCreator
	provider    provider.Provider
	fromAddress string
	fromName    string
	batchSize   int
	logger      *slog.Logger
}

// Config holds processor dependencies
type Config struct {
	Queue       QueueRepository
	Messages    MessageCreator
	Provider    provider.Provider
	FromAddress string
	FromName    string
	BatchSize   int
	Logger      *slog.Logger
}

// NewProcessor creates a send queue processor
func NewProcessor(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 10
	}
	return &Processor{
		queue:       cfg.Queue,
		messages:    cfg.Messages,
		provider:    cfg.Provider,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// ProcessBatch claims up to the batch size of pending items and attempts
// delivery for each. One failing item never blocks the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context) error {
	items, err := p.queue.ClaimPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	metrics.DispatchQueueClaimed.Add(float64(len(items)))

	for i := range items {
		p.processItem(ctx, &items[i])
	}

	return nil
}

func (p *Processor) processItem(ctx context.Context, item *repository.SendQueueItem) {
	err := p.provider.Send(ctx, p.toOutbound(item))
	if err != nil {
		metrics.DispatchAttemptsTotal.WithLabelValues(p.provider.Name(), "failure").Inc()
		p.handleFailure(ctx, item, err)
		return
	}

	metrics.DispatchAttemptsTotal.WithLabelValues(p.provider.Name(), "success").Inc()

	if markErr := p.queue.MarkSent(ctx, item.ID); markErr != nil {
		p.logger.Error("failed to mark queue item sent",
			slog.String("item_id", item.ID.String()),
			slog.String("error", markErr.Error()),
		)
	}

	if recErr := p.recordSentMessage(ctx, item); recErr != nil {
		// Delivery already happened; a missing sent-folder copy is
		// logged but does not fail the item.
		p.logger.Error("failed to record sent message",
			slog.String("item_id", item.ID.String()),
			slog.String("error", recErr.Error()),
		)
	}

	p.logger.Info("queue item delivered",
		slog.String("item_id", item.ID.String()),
		slog.String("provider", p.provider.Name()),
	)
}

// handleFailure either requeues the item or marks it failed once the
// attempt budget is exhausted
func (p *Processor) handleFailure(ctx context.Context, item *repository.SendQueueItem, sendErr error) {
	newCount := item.RetryCount + 1

	if newCount < maxAttempts {
		p.logger.Warn("delivery failed, requeueing",
			slog.String("item_id", item.ID.String()),
			slog.Int("retry_count", newCount),
			slog.String("error", sendErr.Error()),
		)
		if err := p.queue.MarkRetry(ctx, item.ID, newCount, sendErr.Error()); err != nil {
			p.logger.Error("failed to requeue item",
				slog.String("item_id", item.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	p.logger.Error("delivery failed permanently",
		slog.String("item_id", item.ID.String()),
		slog.Int("retry_count", newCount),
		slog.String("error", sendErr.Error()),
	)
	if err := p.queue.MarkFailed(ctx, item.ID, newCount, sendErr.Error()); err != nil {
		p.logger.Error("failed to mark item failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) toOutbound(item *repository.SendQueueItem) *provider.Outbound {
	out := &provider.Outbound{
		FromAddress: p.fromAddress,
		FromName:    p.fromName,
		Cc:          item.CcAddrs,
		Bcc:         item.BccAddrs,
		Subject:     item.Subject,
		TextBody:    item.TextBody,
		HTMLBody:    item.HTMLBody,
	}
	if len(item.ToAddrs) > 0 {
		out.To = item.ToAddrs[0]
	}
	for _, att := range item.Attachments {
		out.Attachments = append(out.Attachments, provider.OutboundAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	return out
}

// recordSentMessage writes a copy of the delivered mail into the sender's
// sent folder
func (p *Processor) recordSentMessage(ctx context.Context, item *repository.SendQueueItem) error {
	now := time.Now()

	recipient := ""
	if len(item.ToAddrs) > 0 {
		recipient = item.ToAddrs[0]
	}

	msg := &repository.Message{
		ID:         uuid.New(),
		UserID:     item.UserID,
		MessageID:  fmt.Sprintf("sent-%d-%06d", now.UnixMilli(), rand.Intn(1000000)),
		Sender:     p.fromAddress,
		Recipient:  recipient,
		Subject:    item.Subject,
		TextBody:   item.TextBody,
		HTMLBody:   item.HTMLBody,
		RawHeaders: map[string]string{},
		Folder:     repository.FolderSent,
		IsRead:     true,
		SizeBytes:  int64(len(item.TextBody) + len(item.HTMLBody)),
		ReceivedAt: now,
		CreatedAt:  now,
	}

	return p.messages.Create(ctx, msg)
}
