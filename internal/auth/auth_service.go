package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// emailPattern matches addresses of the form local@domain.tld without
// whitespace or extra @ signs.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Auth service errors
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidateEmail reports whether the address has a plausible mailbox shape
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// RegisterResult carries the outcome of a successful registration.
// APIToken is the raw token, returned exactly once.
type RegisterResult struct {
	User     *repository.User
	APIToken string
}

// LoginResult carries the outcome of a successful login. The API token is
// rotated on every login, so the previous token stops working.
type LoginResult struct {
	User        *repository.User
	APIToken    string
	AccessToken string
	ExpiresIn   int64
}

// AuthService implements registration and token-based authentication
type AuthService struct {
	users        repository.UserRepositoryInterface
	tokenService *TokenService
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService instance
func NewAuthService(users repository.UserRepositoryInterface, tokenService *TokenService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:        users,
		tokenService: tokenService,
		logger:       logger,
	}
}

// Register creates a new mailbox user and returns the raw API token
func (s *AuthService) Register(ctx context.Context, email string) (*RegisterResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}

	apiToken, err := s.tokenService.GenerateAPIToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API token: %w", err)
	}

	user := &repository.User{
		ID:        uuid.New(),
		Email:     email,
		TokenHash: HashToken(apiToken),
		Status:    repository.UserStatusActive,
		CreatedAt: time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID.String()))

	return &RegisterResult{User: user, APIToken: apiToken}, nil
}

// Login verifies the presented API token, rotates it, and mints a
// short-lived access token
func (s *AuthService) Login(ctx context.Context, email, apiToken string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	presented := HashToken(apiToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(user.TokenHash)) != 1 {
		return nil, ErrInvalidCredentials
	}

	if user.Status != repository.UserStatusActive {
		return nil, ErrInvalidCredentials
	}

	newToken, err := s.tokenService.GenerateAPIToken()
	if err != nil {
		return nil, fmt.Errorf("failed to rotate API token: %w", err)
	}

	if err := s.users.RotateToken(ctx, user.ID, HashToken(newToken)); err != nil {
		return nil, fmt.Errorf("failed to rotate API token: %w", err)
	}
	user.TokenHash = HashToken(newToken)

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		// Login still succeeds if the timestamp update fails
		s.logger.Warn("failed to update last login",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	accessToken, err := s.tokenService.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID.String()))

	return &LoginResult{
		User:        user,
		APIToken:    newToken,
		AccessToken: accessToken,
		ExpiresIn:   int64(s.tokenService.GetAccessTokenExpiry().Seconds()),
	}, nil
}

// AuthenticateToken resolves a bearer credential to a user. JWTs are tried
// first; anything else is treated as an opaque API token.
func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (userID, email string, err error) {
	if claims, jwtErr := s.tokenService.ValidateAccessToken(token); jwtErr == nil {
		return claims.UserID(), claims.Email, nil
	}

	user, err := s.users.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", fmt.Errorf("failed to look up token: %w", err)
	}

	return user.ID.String(), user.Email, nil
}
