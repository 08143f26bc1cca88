package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Attachment repository errors
var (
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// AttachmentRepositoryInterface defines the interface for attachment repository operations
type AttachmentRepositoryInterface interface {
	CreateBatch(ctx context.Context, attachments []Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListByMessageID(ctx context.Context, messageID uuid.UUID) ([]Attachment, error)
	ListCleanupCandidates(ctx context.Context, cutoff time.Time) ([]Attachment, error)
	DeleteByMessageID(ctx context.Context, messageID uuid.UUID) error
}

// AttachmentRepo implements AttachmentRepositoryInterface using PostgreSQL
type AttachmentRepo struct {
	db *sqlx.DB
}

// NewAttachmentRepo creates a new AttachmentRepo instance
func NewAttachmentRepo(db *sqlx.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// CreateBatch inserts attachment metadata rows for a message
func (r *AttachmentRepo) CreateBatch(ctx context.Context, attachments []Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	query := `
		INSERT INTO attachments (id, message_id, filename, content_type, size_bytes,
		                         checksum, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, att := range attachments {
		_, err := tx.ExecContext(ctx, query,
			att.ID,
			att.MessageID,
			att.Filename,
			att.ContentType,
			att.SizeBytes,
			att.Checksum,
			att.StorageKey,
			att.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attachments: %w", err)
	}

	return nil
}

// GetByID retrieves attachment metadata by ID
func (r *AttachmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	query := `
		SELECT id, message_id, filename, content_type, size_bytes, checksum, storage_key, created_at
		FROM attachments
		WHERE id = $1
	`

	var att Attachment
	err := r.db.GetContext(ctx, &att, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return &att, nil
}

// ListByMessageID retrieves all attachments belonging to a message
func (r *AttachmentRepo) ListByMessageID(ctx context.Context, messageID uuid.UUID) ([]Attachment, error) {
	query := `
		SELECT id, message_id, filename, content_type, size_bytes, checksum, storage_key, created_at
		FROM attachments
		WHERE message_id = $1
		ORDER BY created_at ASC
	`

	var attachments []Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	return attachments, nil
}

// ListCleanupCandidates returns attachments whose parent message was trashed
// before the cutoff. The janitor removes the stored objects before the
// message rows are purged.
func (r *AttachmentRepo) ListCleanupCandidates(ctx context.Context, cutoff time.Time) ([]Attachment, error) {
	query := `
		SELECT a.id, a.message_id, a.filename, a.content_type, a.size_bytes,
		       a.checksum, a.storage_key, a.created_at
		FROM attachments a
		JOIN messages m ON m.id = a.message_id
		WHERE m.is_deleted = TRUE AND m.received_at < $1
	`

	var attachments []Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list cleanup candidates: %w", err)
	}

	return attachments, nil
}

// DeleteByMessageID removes all attachment rows for a message
func (r *AttachmentRepo) DeleteByMessageID(ctx context.Context, messageID uuid.UUID) error {
	query := `DELETE FROM attachments WHERE message_id = $1`

	if _, err := r.db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}

	return nil
}
