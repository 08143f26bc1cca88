package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/auth"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

var validate = validator.New()

// SendQueue enqueues outbound messages for background delivery
type SendQueue interface {
	Enqueue(ctx context.Context, item *repository.SendQueueItem) error
}

// HTMLCleaner strips unsafe markup from HTML bodies before they are stored
type HTMLCleaner interface {
	Sanitize(html string) string
}

// SendHandler handles HTTP requests for outbound email
type SendHandler struct {
	queue     SendQueue
	sanitizer HTMLCleaner
	logger    *slog.Logger
}

// NewSendHandler creates a new SendHandler instance
func NewSendHandler(queue SendQueue, sanitizer HTMLCleaner, logger *slog.Logger) *SendHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendHandler{
		queue:     queue,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Send handles POST /api/send. The message is queued and delivered
// asynchronously by the send worker.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	req.To = strings.TrimSpace(req.To)
	if !auth.ValidateEmail(req.To) {
		writeError(w, http.StatusBadRequest, CodeInvalidRecipient, "Recipient address is not valid")
		return
	}
	for _, addr := range append(append([]string{}, req.Cc...), req.Bcc...) {
		if !auth.ValidateEmail(strings.TrimSpace(addr)) {
			writeError(w, http.StatusBadRequest, CodeInvalidRecipient, "Recipient address is not valid")
			return
		}
	}

	if strings.TrimSpace(req.Subject) == "" {
		writeError(w, http.StatusBadRequest, CodeEmptySubject, "Subject must not be empty")
		return
	}

	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.HTML) == "" {
		writeError(w, http.StatusBadRequest, CodeEmptyContent, "Message must have a text or HTML body")
		return
	}

	htmlBody := req.HTML
	if htmlBody != "" {
		htmlBody = h.sanitizer.Sanitize(htmlBody)
	}

	item := &repository.SendQueueItem{
		ID:        uuid.New(),
		UserID:    userID,
		ToAddrs:   []string{req.To},
		CcAddrs:   req.Cc,
		BccAddrs:  req.Bcc,
		Subject:   req.Subject,
		TextBody:  req.Text,
		HTMLBody:  htmlBody,
		Status:    repository.SendStatusPending,
		CreatedAt: time.Now(),
	}
	for _, att := range req.Attachments {
		item.Attachments = append(item.Attachments, repository.QueuedAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}

	if err := h.queue.Enqueue(r.Context(), item); err != nil {
		h.logger.Error("Failed to enqueue message", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, CodeSendFailed, "Failed to queue message for delivery")
		return
	}

	h.logger.Info("Message queued for delivery", "queue_id", item.ID, "user_id", userID)
	writeSuccess(w, http.StatusAccepted, SendResponse{
		QueueID: item.ID.String(),
		Status:  repository.SendStatusPending,
	})
}
