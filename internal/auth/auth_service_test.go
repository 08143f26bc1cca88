package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

// fakeUserRepo is an in-memory UserRepositoryInterface for tests
type fakeUserRepo struct {
	byEmail map[string]*repository.User
	byHash  map[string]*repository.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail: make(map[string]*repository.User),
		byHash:  make(map[string]*repository.User),
	}
}

func (r *fakeUserRepo) Create(_ context.Context, user *repository.User) error {
	if _, exists := r.byEmail[user.Email]; exists {
		return repository.ErrUserExists
	}
	u := *user
	r.byEmail[u.Email] = &u
	r.byHash[u.TokenHash] = &u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	for _, user := range r.byEmail {
		if user.ID == id {
			u := *user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *fakeUserRepo) GetByTokenHash(_ context.Context, hash string) (*repository.User, error) {
	user, ok := r.byHash[hash]
	if !ok || user.Status != repository.UserStatusActive {
		return nil, repository.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *fakeUserRepo) RotateToken(_ context.Context, id uuid.UUID, newHash string) error {
	for _, user := range r.byEmail {
		if user.ID == id {
			delete(r.byHash, user.TokenHash)
			user.TokenHash = newHash
			r.byHash[newHash] = user
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	for _, user := range r.byEmail {
		if user.ID == id {
			now := time.Now()
			user.LastLoginAt = &now
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func newTestAuthService(repo repository.UserRepositoryInterface) *AuthService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(repo, newTestTokenService(), logger)
}

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+c@sub.example.org",
		"x@y.zz",
	}
	invalid := []string{
		"",
		"no-at-sign",
		"two@@example.com",
		"spaces in@example.com",
		"missing@tld",
		"@example.com",
		"user@.com",
	}

	for _, email := range valid {
		if !ValidateEmail(email) {
			t.Errorf("ValidateEmail(%q) = false, want true", email)
		}
	}
	for _, email := range invalid {
		if ValidateEmail(email) {
			t.Errorf("ValidateEmail(%q) = true, want false", email)
		}
	}
}

func TestRegister_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	result, err := svc.Register(context.Background(), "Alice@Example.COM")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if result.User.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased %q", result.User.Email, "alice@example.com")
	}
	if result.APIToken == "" {
		t.Fatal("expected a raw API token")
	}
	if result.User.TokenHash != HashToken(result.APIToken) {
		t.Error("stored hash should match the returned token")
	}
	if result.User.Status != repository.UserStatusActive {
		t.Errorf("status = %q, want %q", result.User.Status, repository.UserStatusActive)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), "not-an-address")
	if !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("err = %v, want ErrInvalidEmail", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	if _, err := svc.Register(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}

	_, err := svc.Register(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("err = %v, want ErrUserExists", err)
	}
}

func TestLogin_RotatesToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	reg, err := svc.Register(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	login, err := svc.Login(context.Background(), "alice@example.com", reg.APIToken)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if login.APIToken == reg.APIToken {
		t.Error("login should rotate the API token")
	}
	if login.AccessToken == "" {
		t.Error("expected an access token")
	}
	if login.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("expires_in = %d, want %d", login.ExpiresIn, int64((15*time.Minute).Seconds()))
	}

	// The old token no longer authenticates
	if _, err := svc.Login(context.Background(), "alice@example.com", reg.APIToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old token: err = %v, want ErrInvalidCredentials", err)
	}

	// The new one does
	if _, err := svc.Login(context.Background(), "alice@example.com", login.APIToken); err != nil {
		t.Errorf("new token: unexpected error %v", err)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_WrongToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	if _, err := svc.Register(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	_, err := svc.Login(context.Background(), "alice@example.com", "0000")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateToken_JWT(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	reg, err := svc.Register(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	login, err := svc.Login(context.Background(), "alice@example.com", reg.APIToken)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	userID, email, err := svc.AuthenticateToken(context.Background(), login.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateToken returned error: %v", err)
	}
	if userID != reg.User.ID.String() {
		t.Errorf("userID = %q, want %q", userID, reg.User.ID.String())
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want %q", email, "alice@example.com")
	}
}

func TestAuthenticateToken_OpaqueAPIToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	reg, err := svc.Register(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	userID, email, err := svc.AuthenticateToken(context.Background(), reg.APIToken)
	if err != nil {
		t.Fatalf("AuthenticateToken returned error: %v", err)
	}
	if userID != reg.User.ID.String() {
		t.Errorf("userID = %q, want %q", userID, reg.User.ID.String())
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want %q", email, "alice@example.com")
	}
}

func TestAuthenticateToken_Unknown(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())

	_, _, err := svc.AuthenticateToken(context.Background(), "bogus-token")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}
