package service

import (
	"context"
	"testing"
	"time"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Mock repositories for testing
type mockAdminRepository struct {
	admins map[string]*domain.Admin
}

func newMockAdminRepository() *mockAdminRepository {
	return &mockAdminRepository{
		admins: make(map[string]*domain.Admin),
	}
}

func (m *mockAdminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	if _, exists := m.admins[admin.Email]; exists {
		return repository.ErrAdminAlreadyExists
	}
	m.admins[admin.Email] = admin
	return nil
}

func (m *mockAdminRepository) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	admin, exists := m.admins[email]
	if !exists {
		return nil, repository.ErrAdminNotFound
	}
	return admin, nil
}

func (m *mockAdminRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	for _, admin := range m.admins {
		if admin.ID == id {
			return admin, nil
		}
	}
	return nil, repository.ErrAdminNotFound
}

func (m *mockAdminRepository) Count(ctx context.Context) (int, error) {
	return len(m.admins), nil
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func newAuthFixture() (AuthService, *mockAdminRepository, *mockRefreshTokenRepository) {
	admins := newMockAdminRepository()
	tokens := newMockRefreshTokenRepository()
	svc := NewAuthService(admins, tokens, "test-secret", zap.NewNop())
	return svc, admins, tokens
}

func seedAdmin(t *testing.T, admins *mockAdminRepository, email, password string) *domain.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	admin := &domain.Admin{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Administrator",
		Role:         "admin",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := admins.Create(context.Background(), admin); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	return admin
}

func TestAuthService_Login(t *testing.T) {
	svc, admins, _ := newAuthFixture()
	ctx := context.Background()
	seedAdmin(t, admins, "root@example.com", "correct horse")

	access, refresh, admin, err := svc.Login(ctx, "root@example.com", "correct horse")
	if err != nil {
		t.Fatalf("expected login to succeed: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if admin.Email != "root@example.com" {
		t.Errorf("unexpected admin returned: %s", admin.Email)
	}

	claims, err := svc.ValidateToken(access)
	if err != nil {
		t.Fatalf("issued access token failed validation: %v", err)
	}
	if claims.AdminID != admin.ID || claims.Role != "admin" {
		t.Errorf("claims do not match admin: %+v", claims)
	}
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	svc, admins, _ := newAuthFixture()
	ctx := context.Background()
	seedAdmin(t, admins, "root@example.com", "correct horse")

	if _, _, _, err := svc.Login(ctx, "root@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, _, err := svc.Login(ctx, "nobody@example.com", "correct horse"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	svc, admins, tokens := newAuthFixture()
	ctx := context.Background()
	seedAdmin(t, admins, "root@example.com", "correct horse")

	_, refresh, _, err := svc.Login(ctx, "root@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	newAccess, newRefresh, err := svc.Refresh(ctx, refresh)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if newAccess == "" || newRefresh == "" {
		t.Fatal("expected a fresh token pair")
	}
	if newRefresh == refresh {
		t.Error("refresh token was not rotated")
	}
	if !tokens.tokens[refresh].Revoked {
		t.Error("presented refresh token should be revoked after rotation")
	}

	// The old token is single use.
	if _, _, err := svc.Refresh(ctx, refresh); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken on reuse, got %v", err)
	}

	// The rotated token still works.
	if _, _, err := svc.Refresh(ctx, newRefresh); err != nil {
		t.Errorf("rotated token should be usable: %v", err)
	}
}

func TestAuthService_RefreshRejectsExpiredToken(t *testing.T) {
	svc, admins, tokens := newAuthFixture()
	ctx := context.Background()
	admin := seedAdmin(t, admins, "root@example.com", "correct horse")

	expired := &domain.RefreshToken{
		ID:        uuid.New(),
		AdminID:   admin.ID,
		Token:     uuid.New().String(),
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
	}
	if err := tokens.Create(ctx, expired); err != nil {
		t.Fatalf("failed to store token: %v", err)
	}

	if _, _, err := svc.Refresh(ctx, expired.Token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, admins, tokens := newAuthFixture()
	ctx := context.Background()
	seedAdmin(t, admins, "root@example.com", "correct horse")

	_, refresh, _, err := svc.Login(ctx, "root@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(ctx, refresh); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if !tokens.tokens[refresh].Revoked {
		t.Error("logout should revoke the refresh token")
	}

	// Logging out an unknown token is not an error.
	if err := svc.Logout(ctx, "never-issued"); err != nil {
		t.Errorf("logout of unknown token should be tolerated: %v", err)
	}
}

func TestAuthService_ValidateTokenRejectsForgery(t *testing.T) {
	svc, admins, _ := newAuthFixture()
	ctx := context.Background()
	seedAdmin(t, admins, "root@example.com", "correct horse")

	access, _, _, err := svc.Login(ctx, "root@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := NewAuthService(newMockAdminRepository(), newMockRefreshTokenRepository(), "different-secret", zap.NewNop())
	if _, err := other.ValidateToken(access); err == nil {
		t.Error("token signed with another secret must not validate")
	}
	if _, err := svc.ValidateToken("not.a.jwt"); err == nil {
		t.Error("garbage token must not validate")
	}
}

func TestAuthService_EnsureSeedAdmin(t *testing.T) {
	svc, admins, _ := newAuthFixture()
	ctx := context.Background()

	if err := svc.EnsureSeedAdmin(ctx, "seed@example.com", "bootstrap-pass"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
	admin, err := admins.FindByEmail(ctx, "seed@example.com")
	if err != nil {
		t.Fatalf("seed admin was not created: %v", err)
	}
	if admin.Role != "admin" {
		t.Errorf("seed admin role = %q", admin.Role)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("bootstrap-pass")) != nil {
		t.Error("seed admin password is not a bcrypt hash of the configured password")
	}

	// A second call with an admin already present is a no-op.
	if err := svc.EnsureSeedAdmin(ctx, "other@example.com", "whatever"); err != nil {
		t.Fatalf("repeat seeding errored: %v", err)
	}
	if _, err := admins.FindByEmail(ctx, "other@example.com"); err == nil {
		t.Error("seeding must not create a second admin")
	}

	// Empty credentials disable seeding entirely.
	empty, emptyAdmins, _ := newAuthFixture()
	if err := empty.EnsureSeedAdmin(ctx, "", ""); err != nil {
		t.Fatalf("empty seed config errored: %v", err)
	}
	if n, _ := emptyAdmins.Count(ctx); n != 0 {
		t.Errorf("expected no admins, got %d", n)
	}
}

func TestProperty_LoginRoundTrip(t *testing.T) {
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("any seeded credential pair can log in and validate", prop.ForAll(
		func(email, password string) bool {
			svc, admins, _ := newAuthFixture()
			hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
			if err != nil {
				return false
			}
			admin := &domain.Admin{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: string(hash),
				Name:         "Administrator",
				Role:         "admin",
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}
			if err := admins.Create(ctx, admin); err != nil {
				return false
			}

			access, _, _, err := svc.Login(ctx, email, password)
			if err != nil {
				return false
			}
			claims, err := svc.ValidateToken(access)
			return err == nil && claims.AdminID == admin.ID
		},
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
