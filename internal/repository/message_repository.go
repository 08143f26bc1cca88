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
)

// Message repository errors
var (
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepositoryInterface defines the interface for message repository operations
type MessageRepositoryInterface interface {
	Create(ctx context.Context, msg *Message) error
	List(ctx context.Context, userID uuid.UUID, params ListMessageParams) ([]Message, int, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Message, error)
	GetIncludingDeleted(ctx context.Context, userID, id uuid.UUID) (*Message, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, read bool) error
	ToggleStar(ctx context.Context, userID, id uuid.UUID) (bool, error)
	MoveToTrash(ctx context.Context, userID, id uuid.UUID) error
	DeletePermanently(ctx context.Context, userID, id uuid.UUID) error
	IsOwnedByUser(ctx context.Context, messageID, userID uuid.UUID) (bool, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*MailboxStats, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepo implements MessageRepositoryInterface using PostgreSQL
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo creates a new MessageRepo instance
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// NormalizeListParams applies listing defaults and caps the page size at 100.
func NormalizeListParams(params ListMessageParams) ListMessageParams {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}
	return params
}

// Create inserts a new message record
func (r *MessageRepo) Create(ctx context.Context, msg *Message) error {
	headersJSON, err := json.Marshal(msg.RawHeaders)
	if err != nil {
		headersJSON = []byte("{}")
	}

	query := `
		INSERT INTO messages (id, user_id, message_id, sender, recipient, subject,
		                      text_body, html_body, raw_headers, folder, is_read,
		                      is_starred, is_deleted, size_bytes, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		msg.ID,
		msg.UserID,
		msg.MessageID,
		msg.Sender,
		msg.Recipient,
		msg.Subject,
		msg.TextBody,
		msg.HTMLBody,
		headersJSON,
		msg.Folder,
		msg.IsRead,
		msg.IsStarred,
		msg.IsDeleted,
		msg.SizeBytes,
		msg.ReceivedAt,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// List retrieves messages for a user with filtering, search, and pagination
func (r *MessageRepo) List(ctx context.Context, userID uuid.UUID, params ListMessageParams) ([]Message, int, error) {
	params = NormalizeListParams(params)

	baseQuery := `
		FROM messages m
		WHERE m.user_id = $1 AND m.is_deleted = FALSE
	`
	args := []interface{}{userID}
	argIdx := 2

	if params.Folder != "" {
		baseQuery += fmt.Sprintf(" AND m.folder = $%d", argIdx)
		args = append(args, params.Folder)
		argIdx++
	}

	if params.IsRead != nil {
		baseQuery += fmt.Sprintf(" AND m.is_read = $%d", argIdx)
		args = append(args, *params.IsRead)
		argIdx++
	}

	if params.IsStarred != nil {
		baseQuery += fmt.Sprintf(" AND m.is_starred = $%d", argIdx)
		args = append(args, *params.IsStarred)
		argIdx++
	}

	if params.Search != "" {
		baseQuery += fmt.Sprintf(` AND (
			LOWER(m.subject) LIKE LOWER($%d) OR
			LOWER(m.sender) LIKE LOWER($%d) OR
			LOWER(m.text_body) LIKE LOWER($%d)
		)`, argIdx, argIdx, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	if params.Sender != "" {
		baseQuery += fmt.Sprintf(" AND LOWER(m.sender) LIKE LOWER($%d)", argIdx)
		args = append(args, "%"+params.Sender+"%")
		argIdx++
	}

	if params.Since != nil {
		baseQuery += fmt.Sprintf(" AND m.received_at >= $%d", argIdx)
		args = append(args, *params.Since)
		argIdx++
	}
	if params.Until != nil {
		baseQuery += fmt.Sprintf(" AND m.received_at <= $%d", argIdx)
		args = append(args, *params.Until)
		argIdx++
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	selectQuery := `
		SELECT m.id, m.user_id, m.message_id, m.sender, m.recipient, m.subject,
		       m.text_body, m.html_body, m.raw_headers, m.folder, m.is_read,
		       m.is_starred, m.is_deleted, m.size_bytes, m.received_at, m.created_at
	` + baseQuery + " ORDER BY m.received_at DESC"

	offset := (params.Page - 1) * params.Limit
	selectQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, totalCount, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var headersJSON []byte

	err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.MessageID,
		&msg.Sender,
		&msg.Recipient,
		&msg.Subject,
		&msg.TextBody,
		&msg.HTMLBody,
		&headersJSON,
		&msg.Folder,
		&msg.IsRead,
		&msg.IsStarred,
		&msg.IsDeleted,
		&msg.SizeBytes,
		&msg.ReceivedAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &msg.RawHeaders); err != nil {
			msg.RawHeaders = make(map[string]string)
		}
	} else {
		msg.RawHeaders = make(map[string]string)
	}

	return &msg, nil
}

// GetByID retrieves a message owned by the given user
func (r *MessageRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*Message, error) {
	query := `
		SELECT m.id, m.user_id, m.message_id, m.sender, m.recipient, m.subject,
		       m.text_body, m.html_body, m.raw_headers, m.folder, m.is_read,
		       m.is_starred, m.is_deleted, m.size_bytes, m.received_at, m.created_at
		FROM messages m
		WHERE m.id = $1 AND m.user_id = $2 AND m.is_deleted = FALSE
	`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// MarkRead sets the read flag on a message
func (r *MessageRepo) MarkRead(ctx context.Context, userID, id uuid.UUID, read bool) error {
	query := `UPDATE messages SET is_read = $1 WHERE id = $2 AND user_id = $3 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, read, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// ToggleStar flips the starred flag and returns the new value
func (r *MessageRepo) ToggleStar(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	query := `
		UPDATE messages SET is_starred = NOT is_starred
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE
		RETURNING is_starred
	`

	var starred bool
	err := r.db.GetContext(ctx, &starred, query, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrMessageNotFound
		}
		return false, fmt.Errorf("failed to toggle star: %w", err)
	}

	return starred, nil
}

// MoveToTrash soft-deletes a message into the trash folder
func (r *MessageRepo) MoveToTrash(ctx context.Context, userID, id uuid.UUID) error {
	query := `
		UPDATE messages SET is_deleted = TRUE, folder = $1
		WHERE id = $2 AND user_id = $3 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, FolderTrash, id, userID)
	if err != nil {
		return fmt.Errorf("failed to move message to trash: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// DeletePermanently removes a message row; attachment rows cascade
func (r *MessageRepo) DeletePermanently(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM messages WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// GetIncludingDeleted retrieves a message regardless of deletion state. Used
// by the delete endpoint to decide between soft and permanent deletion.
func (r *MessageRepo) GetIncludingDeleted(ctx context.Context, userID, id uuid.UUID) (*Message, error) {
	query := `
		SELECT m.id, m.user_id, m.message_id, m.sender, m.recipient, m.subject,
		       m.text_body, m.html_body, m.raw_headers, m.folder, m.is_read,
		       m.is_starred, m.is_deleted, m.size_bytes, m.received_at, m.created_at
		FROM messages m
		WHERE m.id = $1 AND m.user_id = $2
	`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// IsOwnedByUser checks message ownership without loading the row
func (r *MessageRepo) IsOwnedByUser(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, messageID, userID); err != nil {
		return false, fmt.Errorf("failed to check message ownership: %w", err)
	}

	return exists, nil
}

// PurgeDeletedBefore removes trashed messages older than the cutoff across
// all users. Attachment rows are removed by the cascade.
func (r *MessageRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM messages WHERE is_deleted = TRUE AND received_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted messages: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// GetStats retrieves mailbox statistics for a user
func (r *MessageRepo) GetStats(ctx context.Context, userID uuid.UUID) (*MailboxStats, error) {
	query := `
		SELECT
			COUNT(*) as total_messages,
			COALESCE(SUM(CASE WHEN is_read = FALSE THEN 1 ELSE 0 END), 0) as unread_messages,
			COALESCE(SUM(size_bytes), 0) as total_size_bytes
		FROM messages
		WHERE user_id = $1 AND is_deleted = FALSE
	`

	var stats MailboxStats
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.TotalMessages,
		&stats.UnreadMessages,
		&stats.TotalSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox stats: %w", err)
	}

	return &stats, nil
}
