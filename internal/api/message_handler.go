package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appctx "github.com/stackmail/mailbox/backend/internal/context"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

// MessageStore is the message persistence surface the handlers need
type MessageStore interface {
	List(ctx context.Context, userID uuid.UUID, params repository.ListMessageParams) ([]repository.Message, int, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*repository.Message, error)
	GetIncludingDeleted(ctx context.Context, userID, id uuid.UUID) (*repository.Message, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, read bool) error
	ToggleStar(ctx context.Context, userID, id uuid.UUID) (bool, error)
	MoveToTrash(ctx context.Context, userID, id uuid.UUID) error
	DeletePermanently(ctx context.Context, userID, id uuid.UUID) error
}

// AttachmentLister lists attachment metadata for a message
type AttachmentLister interface {
	ListByMessageID(ctx context.Context, messageID uuid.UUID) ([]repository.Attachment, error)
}

// ObjectRemover removes stored attachment objects
type ObjectRemover interface {
	DeleteByKeys(ctx context.Context, keys []string) (int, error)
}

// MessageHandler handles HTTP requests for mailbox message endpoints
type MessageHandler struct {
	messages    MessageStore
	attachments AttachmentLister
	objects     ObjectRemover
	logger      *slog.Logger
}

// NewMessageHandler creates a new MessageHandler instance
func NewMessageHandler(messages MessageStore, attachments AttachmentLister, objects ObjectRemover, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		messages:    messages,
		attachments: attachments,
		objects:     objects,
		logger:      logger,
	}
}

// requireUser extracts the authenticated user ID from the request context
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}

// ListMessages handles GET /api/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	params := parseListParams(r)

	messages, total, err := h.messages.List(r.Context(), userID, params)
	if err != nil {
		h.logger.Error("Failed to list messages", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list messages")
		return
	}

	params = repository.NormalizeListParams(params)

	summaries := make([]MessageSummary, 0, len(messages))
	for i := range messages {
		summaries = append(summaries, toMessageSummary(&messages[i]))
	}

	writePage(w, summaries, NewPagination(params.Page, params.Limit, total))
}

func parseListParams(r *http.Request) repository.ListMessageParams {
	q := r.URL.Query()
	params := repository.ListMessageParams{
		Folder: q.Get("folder"),
		Search: q.Get("search"),
		Sender: q.Get("sender"),
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			params.Page = page
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			params.Limit = limit
		}
	}
	if readStr := q.Get("is_read"); readStr != "" {
		if read, err := strconv.ParseBool(readStr); err == nil {
			params.IsRead = &read
		}
	}
	if starStr := q.Get("is_starred"); starStr != "" {
		if starred, err := strconv.ParseBool(starStr); err == nil {
			params.IsStarred = &starred
		}
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			params.Since = &since
		}
	}
	if untilStr := q.Get("until"); untilStr != "" {
		if until, err := time.Parse(time.RFC3339, untilStr); err == nil {
			params.Until = &until
		}
	}

	return params
}

// GetMessage handles GET /api/messages/:id
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID")
		return
	}

	msg, err := h.messages.GetByID(r.Context(), userID, messageID)
	if err != nil {
		h.handleMessageError(w, err)
		return
	}

	attachments, err := h.attachments.ListByMessageID(r.Context(), messageID)
	if err != nil {
		h.logger.Error("Failed to list attachments", "error", err, "message_id", messageID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load message")
		return
	}

	writeSuccess(w, http.StatusOK, toMessageDetail(msg, attachments))
}

// MarkRead handles PUT /api/messages/:id/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID")
		return
	}

	// Missing body defaults to marking read
	req := MarkReadRequest{IsRead: true}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
			return
		}
	}

	if err := h.messages.MarkRead(r.Context(), userID, messageID, req.IsRead); err != nil {
		h.handleMessageError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":      messageID.String(),
		"is_read": req.IsRead,
	})
}

// ToggleStar handles PUT /api/messages/:id/star
func (h *MessageHandler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID")
		return
	}

	starred, err := h.messages.ToggleStar(r.Context(), userID, messageID)
	if err != nil {
		h.handleMessageError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, StarResponse{
		ID:        messageID.String(),
		IsStarred: starred,
	})
}

// DeleteMessage handles DELETE /api/messages/:id. The first delete moves
// a message to trash; deleting a trashed message removes it for good.
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID")
		return
	}

	msg, err := h.messages.GetIncludingDeleted(r.Context(), userID, messageID)
	if err != nil {
		h.handleMessageError(w, err)
		return
	}

	if msg.IsDeleted {
		// Objects go first so a failed row delete never strands
		// unreferenced files.
		if err := h.deleteStoredObjects(r.Context(), messageID); err != nil {
			h.handleMessageError(w, err)
			return
		}
		if err := h.messages.DeletePermanently(r.Context(), userID, messageID); err != nil {
			h.handleMessageError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, DeleteResponse{ID: messageID.String(), Permanent: true})
		return
	}

	if err := h.messages.MoveToTrash(r.Context(), userID, messageID); err != nil {
		h.handleMessageError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, DeleteResponse{ID: messageID.String(), Permanent: false})
}

// deleteStoredObjects removes the stored objects backing a message's
// attachments before the rows cascade away with the message
func (h *MessageHandler) deleteStoredObjects(ctx context.Context, messageID uuid.UUID) error {
	atts, err := h.attachments.ListByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		return nil
	}

	keys := make([]string, len(atts))
	for i, att := range atts {
		keys[i] = att.StorageKey
	}

	deleted, err := h.objects.DeleteByKeys(ctx, keys)
	if err != nil {
		return err
	}
	h.logger.Info("Deleted attachment objects for purged message",
		"message_id", messageID, "count", deleted)
	return nil
}

// handleMessageError maps repository errors to HTTP responses
func (h *MessageHandler) handleMessageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, CodeMessageNotFound, "Message not found")
	default:
		h.logger.Error("Unexpected message error", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred")
	}
}
