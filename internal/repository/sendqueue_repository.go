package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Send queue repository errors
var (
	ErrQueueItemNotFound = errors.New("send queue item not found")
)

// SendQueueRepositoryInterface defines the interface for send queue operations
type SendQueueRepositoryInterface interface {
	Enqueue(ctx context.Context, item *SendQueueItem) error
	ClaimPending(ctx context.Context, limit int) ([]SendQueueItem, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
}

// SendQueueRepo implements SendQueueRepositoryInterface using PostgreSQL
type SendQueueRepo struct {
	db *sqlx.DB
}

// NewSendQueueRepo creates a new SendQueueRepo instance
func NewSendQueueRepo(db *sqlx.DB) *SendQueueRepo {
	return &SendQueueRepo{db: db}
}

// Enqueue inserts a new outbound message in pending state
func (r *SendQueueRepo) Enqueue(ctx context.Context, item *SendQueueItem) error {
	attachmentsJSON, err := json.Marshal(item.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		INSERT INTO send_queue (id, user_id, to_addrs, cc_addrs, bcc_addrs, subject,
		                        text_body, html_body, attachments, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		pq.Array(item.ToAddrs),
		pq.Array(item.CcAddrs),
		pq.Array(item.BccAddrs),
		item.Subject,
		item.TextBody,
		item.HTMLBody,
		attachmentsJSON,
		item.Status,
		item.RetryCount,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	return nil
}

// ClaimPending atomically moves up to limit pending items into processing
// state and returns them. Claimed rows are skipped by concurrent workers.
func (r *SendQueueRepo) ClaimPending(ctx context.Context, limit int) ([]SendQueueItem, error) {
	query := `
		UPDATE send_queue SET status = $1
		WHERE id IN (
			SELECT id FROM send_queue
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, to_addrs, cc_addrs, bcc_addrs, subject, text_body,
		          html_body, attachments, status, retry_count, error_message,
		          created_at, processed_at
	`

	rows, err := r.db.QueryContext(ctx, query, SendStatusProcessing, SendStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending items: %w", err)
	}
	defer rows.Close()

	var items []SendQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}

	return items, nil
}

func scanQueueItem(row rowScanner) (*SendQueueItem, error) {
	var item SendQueueItem
	var attachmentsJSON []byte

	err := row.Scan(
		&item.ID,
		&item.UserID,
		pq.Array(&item.ToAddrs),
		pq.Array(&item.CcAddrs),
		pq.Array(&item.BccAddrs),
		&item.Subject,
		&item.TextBody,
		&item.HTMLBody,
		&attachmentsJSON,
		&item.Status,
		&item.RetryCount,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &item.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	return &item, nil
}

// MarkSent records successful delivery
func (r *SendQueueRepo) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE send_queue SET status = $1, processed_at = $2, error_message = NULL WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, SendStatusSent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark item sent: %w", err)
	}

	return checkQueueRowAffected(result)
}

// MarkRetry returns an item to pending state with an incremented retry count
func (r *SendQueueRepo) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	query := `UPDATE send_queue SET status = $1, retry_count = $2, error_message = $3 WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, SendStatusPending, retryCount, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark item for retry: %w", err)
	}

	return checkQueueRowAffected(result)
}

// MarkFailed records terminal delivery failure
func (r *SendQueueRepo) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	query := `UPDATE send_queue SET status = $1, retry_count = $2, error_message = $3, processed_at = $4 WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query, SendStatusFailed, retryCount, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}

	return checkQueueRowAffected(result)
}

func checkQueueRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}
