package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stackmail/mailbox/backend/internal/inbound"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

// inboundSecretHeader carries the shared secret set by the ingestion edge
const inboundSecretHeader = "X-Inbound-Secret"

// InboundProcessor ingests a raw inbound email
type InboundProcessor interface {
	Process(ctx context.Context, env *inbound.Envelope) (*repository.Message, error)
}

// InboundHandler handles the email ingestion webhook
type InboundHandler struct {
	processor    InboundProcessor
	sharedSecret string
	logger       *slog.Logger
}

// NewInboundHandler creates a new InboundHandler instance
func NewInboundHandler(processor InboundProcessor, sharedSecret string, logger *slog.Logger) *InboundHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboundHandler{
		processor:    processor,
		sharedSecret: sharedSecret,
		logger:       logger,
	}
}

// Receive handles POST /inbound/email. The endpoint is called by the mail
// edge, not by end users, and is guarded by a shared secret instead of a
// bearer token.
func (h *InboundHandler) Receive(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(inboundSecretHeader)
	if h.sharedSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.sharedSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid inbound secret")
		return
	}

	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	msg, err := h.processor.Process(r.Context(), &inbound.Envelope{
		From: req.From,
		To:   req.To,
		Raw:  req.Raw,
	})
	if err != nil {
		if errors.Is(err, inbound.ErrRecipientUnknown) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Recipient not found")
			return
		}
		h.logger.Error("Failed to process inbound message", "error", err, "recipient", req.To)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to process message")
		return
	}

	writeSuccess(w, http.StatusOK, InboundResponse{MessageID: msg.ID.String()})
}
