package repository

import (
	"time"

	"github.com/google/uuid"
)

// User statuses
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// Mailbox folders
const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
	FolderTrash = "trash"
)

// Send-queue statuses. Sent and failed are terminal.
const (
	SendStatusPending    = "pending"
	SendStatusProcessing = "processing"
	SendStatusSent       = "sent"
	SendStatusFailed     = "failed"
)

// User represents a mailbox account. Authentication is passwordless: the
// account is addressed by its permanent API token, stored hashed.
type User struct {
	ID          uuid.UUID  `db:"id"`
	Email       string     `db:"email"`
	TokenHash   string     `db:"token_hash"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	LastLoginAt *time.Time `db:"last_login_at"`
}

// Message represents a stored email in the database
type Message struct {
	ID         uuid.UUID         `db:"id"`
	UserID     uuid.UUID         `db:"user_id"`
	MessageID  string            `db:"message_id"`
	Sender     string            `db:"sender"`
	Recipient  string            `db:"recipient"`
	Subject    string            `db:"subject"`
	TextBody   string            `db:"text_body"`
	HTMLBody   string            `db:"html_body"`
	RawHeaders map[string]string `db:"raw_headers"`
	Folder     string            `db:"folder"`
	IsRead     bool              `db:"is_read"`
	IsStarred  bool              `db:"is_starred"`
	IsDeleted  bool              `db:"is_deleted"`
	SizeBytes  int64             `db:"size_bytes"`
	ReceivedAt time.Time         `db:"received_at"`
	CreatedAt  time.Time         `db:"created_at"`
}

// Attachment represents attachment metadata; the bytes live in object
// storage under StorageKey.
type Attachment struct {
	ID          uuid.UUID `db:"id"`
	MessageID   uuid.UUID `db:"message_id"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	Checksum    string    `db:"checksum"`
	StorageKey  string    `db:"storage_key"`
	CreatedAt   time.Time `db:"created_at"`
}

// QueuedAttachment is one attachment carried by a send-queue item. Content
// is base64 text; it is decoded only by the receiving provider.
type QueuedAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// SendQueueItem is one outbound email awaiting or having completed delivery.
// Recipient sets map to text[] columns. Attachments are structured in memory
// and serialized to JSON only at the storage edge.
type SendQueueItem struct {
	ID           uuid.UUID          `db:"id"`
	UserID       uuid.UUID          `db:"user_id"`
	ToAddrs      []string           `db:"to_addrs"`
	CcAddrs      []string           `db:"cc_addrs"`
	BccAddrs     []string           `db:"bcc_addrs"`
	Subject      string             `db:"subject"`
	TextBody     string             `db:"text_body"`
	HTMLBody     string             `db:"html_body"`
	Attachments  []QueuedAttachment `db:"-"`
	Status       string             `db:"status"`
	RetryCount   int                `db:"retry_count"`
	ErrorMessage *string            `db:"error_message"`
	CreatedAt    time.Time          `db:"created_at"`
	ProcessedAt  *time.Time         `db:"processed_at"`
}

// ListMessageParams holds filters for listing messages
type ListMessageParams struct {
	Page      int
	Limit     int
	Folder    string
	IsRead    *bool
	IsStarred *bool
	Search    string
	Sender    string
	Since     *time.Time
	Until     *time.Time
}

// MailboxStats summarizes one account's mailbox for the profile endpoint
type MailboxStats struct {
	TotalMessages  int   `json:"total_messages"`
	UnreadMessages int   `json:"unread_messages"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}
