package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestLoginIssuesTokenWithRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || !actor.IsAdmin() {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadPasswordAndInactiveAccount(t *testing.T) {
	users := legacyAdminStore()
	users.users["ana"] = domain.UserAccount{Username: "ana", Password: "secret1", Role: domain.RoleUser, Active: false}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "admin123"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "secret1"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with another secret to be rejected, got %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := manager.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "admin", Issuer: tokenIssuer},
		Role:             domain.RoleAdmin,
	})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}
	if _, err := other.ParseToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unsigned token to be rejected, got %v", err)
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Caixa2",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "caixa2" || created.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", created)
	}

	account, ok := users.users["caixa2"]
	if !ok {
		t.Fatalf("expected user to be persisted")
	}
	if account.Password == "pass1234" || !isPasswordHash(account.Password) {
		t.Fatalf("expected stored password to be a bcrypt hash")
	}

	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "caixa2", Password: "pass1234"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "dois nomes", Password: "pass1234"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for username with spaces, got %v", err)
	}

	listed := manager.ListUsers(context.Background())
	if len(listed) != 2 || listed[0].Username != "admin" || listed[1].Username != "caixa2" {
		t.Fatalf("expected sorted [admin caixa2], got %+v", listed)
	}
}

func TestEnsureAdminOnlyBootstrapsEmptyStore(t *testing.T) {
	empty := &userStoreStub{}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, empty)

	created, err := manager.EnsureAdmin(context.Background(), "dono", "segredo1")
	if err != nil {
		t.Fatalf("ensure admin failed: %v", err)
	}
	if !created {
		t.Fatalf("expected admin to be created in an empty store")
	}
	if empty.users["dono"].Role != domain.RoleAdmin {
		t.Fatalf("expected bootstrap account to be admin, got %+v", empty.users["dono"])
	}

	created, err = manager.EnsureAdmin(context.Background(), "outro", "segredo1")
	if err != nil {
		t.Fatalf("second ensure admin failed: %v", err)
	}
	if created {
		t.Fatalf("expected no account to be created once users exist")
	}

	if _, err := NewAuthManager(context.Background(), "s", time.Hour, &userStoreStub{}).EnsureAdmin(context.Background(), "", ""); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without bootstrap credentials, got %v", err)
	}
}
