package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// Error codes for auth operations
const (
	CodeInvalidEmail    = "INVALID_EMAIL"
	CodeUserExists      = "USER_EXISTS"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

var validate = validator.New()

// RegisterRequest is the request body for POST /auth/register
type RegisterRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	APIToken string `json:"api_token" validate:"required"`
}

// UserResponse is the public view of a user account
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// RegisterResponse is the response body for a successful registration
type RegisterResponse struct {
	User     UserResponse `json:"user"`
	APIToken string       `json:"api_token"`
}

// LoginResponse is the response body for a successful login
type LoginResponse struct {
	User        UserResponse `json:"user"`
	APIToken    string       `json:"api_token"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

type apiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService *AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "email is required")
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, RegisterResponse{
		User:     toUserResponse(result.User),
		APIToken: result.APIToken,
	})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "email and api_token are required")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.APIToken)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, LoginResponse{
		User:        toUserResponse(result.User),
		APIToken:    result.APIToken,
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
	})
}

// handleAuthError maps auth errors to HTTP responses
func (h *AuthHandler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		h.writeError(w, http.StatusBadRequest, CodeInvalidEmail, "Invalid email address format")
	case errors.Is(err, ErrUserExists):
		h.writeError(w, http.StatusConflict, CodeUserExists, "User already exists")
	case errors.Is(err, ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid email or token")
	default:
		h.logger.Error("Unexpected auth error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred")
	}
}

func toUserResponse(user *repository.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Status:    user.Status,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLoginAt,
	}
}

// writeSuccess writes a successful JSON response
func (h *AuthHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(apiResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
