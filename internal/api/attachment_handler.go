package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/repository"
	"github.com/stackmail/mailbox/backend/internal/storage"
)

// AttachmentStore looks up attachment metadata
type AttachmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Attachment, error)
}

// OwnershipChecker verifies that a message belongs to a user
type OwnershipChecker interface {
	IsOwnedByUser(ctx context.Context, messageID, userID uuid.UUID) (bool, error)
}

// ObjectFetcher retrieves stored attachment content
type ObjectFetcher interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// AttachmentHandler handles attachment download requests
type AttachmentHandler struct {
	attachments AttachmentStore
	messages    OwnershipChecker
	objects     ObjectFetcher
	logger      *slog.Logger
}

// NewAttachmentHandler creates a new AttachmentHandler instance
func NewAttachmentHandler(attachments AttachmentStore, messages OwnershipChecker, objects ObjectFetcher, logger *slog.Logger) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{
		attachments: attachments,
		messages:    messages,
		objects:     objects,
		logger:      logger,
	}
}

// Download handles GET /api/attachments/:id
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	attachmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid attachment ID")
		return
	}

	att, err := h.attachments.GetByID(r.Context(), attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrAttachmentNotFound) {
			writeError(w, http.StatusNotFound, CodeAttachmentNotFound, "Attachment not found")
			return
		}
		h.logger.Error("Failed to load attachment", "error", err, "attachment_id", attachmentID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load attachment")
		return
	}

	owned, err := h.messages.IsOwnedByUser(r.Context(), att.MessageID, userID)
	if err != nil {
		h.logger.Error("Failed to check message ownership", "error", err, "message_id", att.MessageID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load attachment")
		return
	}
	if !owned {
		writeError(w, http.StatusForbidden, CodeAccessDenied, "Access denied")
		return
	}

	obj, err := h.objects.Get(r.Context(), att.StorageKey)
	if err != nil {
		h.logger.Warn("Attachment content missing from storage",
			"error", err, "attachment_id", attachmentID, "storage_key", att.StorageKey)
		writeError(w, http.StatusNotFound, CodeFileNotFound, "Attachment content not found")
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = att.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Content)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Content); err != nil {
		h.logger.Warn("Failed to write attachment response", "error", err, "attachment_id", attachmentID)
	}
}
