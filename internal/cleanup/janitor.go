// Package cleanup removes trashed messages and their stored attachments
// once the retention period has passed.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// AttachmentLister finds attachments belonging to expired trashed messages
type AttachmentLister interface {
	ListCleanupCandidates(ctx context.Context, cutoff time.Time) ([]repository.Attachment, error)
}

// MessagePurger deletes expired trashed message rows
type MessagePurger interface {
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ObjectDeleter removes stored attachment objects
type ObjectDeleter interface {
	DeleteByKeys(ctx context.Context, keys []string) (int, error)
}

// Janitor purges expired trash on a fixed interval
type Janitor struct {
	attachments AttachmentLister
	messages    MessagePurger
	objects     ObjectDeleter
	retention   time.Duration
	interval    time.Duration
	logger      *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
}

// Config holds janitor dependencies
type Config struct {
	Attachments AttachmentLister
	Messages    MessagePurger
	Objects     ObjectDeleter
	Retention   time.Duration
	Interval    time.Duration
	Logger      *slog.Logger
}

// NewJanitor creates a cleanup janitor
func NewJanitor(cfg Config) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{
		attachments: cfg.Attachments,
		messages:    cfg.Messages,
		objects:     cfg.Objects,
		retention:   retention,
		interval:    interval,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the janitor loop in a background goroutine
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("cleanup janitor is already running")
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	j.logger.Info("cleanup janitor started",
		slog.Duration("interval", j.interval),
		slog.Duration("retention", j.retention),
	)

	go j.run(ctx)
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("cleanup run failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup janitor stopped: context cancelled")
			return
		case <-j.stopCh:
			j.logger.Info("cleanup janitor stopped")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("cleanup run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop gracefully stops the janitor and waits for the loop to exit
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopCh)
	<-j.doneCh
}

// RunOnce deletes stored objects for expired trash, then purges the
// message rows. Objects go first so a failed purge never strands
// unreferenced files.
func (j *Janitor) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)

	candidates, err := j.attachments.ListCleanupCandidates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list cleanup candidates: %w", err)
	}

	if len(candidates) > 0 {
		keys := make([]string, len(candidates))
		for i, att := range candidates {
			keys[i] = att.StorageKey
		}

		deleted, err := j.objects.DeleteByKeys(ctx, keys)
		if err != nil {
			return fmt.Errorf("failed to delete stored objects: %w", err)
		}
		j.logger.Info("deleted expired attachment objects", slog.Int("count", deleted))
	}

	purged, err := j.messages.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge messages: %w", err)
	}

	if purged > 0 {
		j.logger.Info("purged expired trashed messages", slog.Int64("count", purged))
	}

	return nil
}
