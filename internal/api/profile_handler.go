package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// UserStore looks up account records
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error)
}

// StatsProvider summarizes a user's mailbox
type StatsProvider interface {
	GetStats(ctx context.Context, userID uuid.UUID) (*repository.MailboxStats, error)
}

// ProfileHandler handles the account profile endpoint
type ProfileHandler struct {
	users  UserStore
	stats  StatsProvider
	logger *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler instance
func NewProfileHandler(users UserStore, stats StatsProvider, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		users:  users,
		stats:  stats,
		logger: logger,
	}
}

// GetProfile handles GET /api/user/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "User not found")
			return
		}
		h.logger.Error("Failed to load user", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load profile")
		return
	}

	stats, err := h.stats.GetStats(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load mailbox stats", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load profile")
		return
	}

	writeSuccess(w, http.StatusOK, ProfileResponse{
		ID:             user.ID.String(),
		Email:          user.Email,
		Status:         user.Status,
		CreatedAt:      user.CreatedAt,
		LastLogin:      user.LastLoginAt,
		TotalMessages:  int64(stats.TotalMessages),
		UnreadMessages: int64(stats.UnreadMessages),
		TotalSizeBytes: stats.TotalSizeBytes,
	})
}
