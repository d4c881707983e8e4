package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/beatvault/beatvault-backend/internal/users"
	pkgAuth "github.com/beatvault/beatvault-backend/pkg/auth"
	"github.com/beatvault/beatvault-backend/pkg/auth/session"
	"github.com/beatvault/beatvault-backend/pkg/config"
	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type memorySessionStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memorySessionStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memorySessionStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memorySessionStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memorySessionStore) AccessSessionKey(accessID string) string {
	return "bv:session:" + accessID
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "test-secret",
		Issuer:                 "beatvault",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func buildTestService(t *testing.T) (Service, *session.Manager) {
	t.Helper()
	manager, err := session.NewManager(&memorySessionStore{values: map[string]string{}}, testJWTConfig())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	svc, err := NewService(ServiceParams{
		UserRepo:       users.NewRepository(dbtest.Open(t)),
		SessionManager: manager,
		JWTConfig:      testJWTConfig(),
		PasswordConfig: testPasswordConfig(),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, manager
}

func TestRegisterAndLogin(t *testing.T) {
	svc, manager := buildTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{Username: "beatsmith", Email: "Beat@Example.com", Password: "Str0ng!pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "beat@example.com" || user.Role != enums.UserRoleFree {
		t.Fatalf("unexpected user %+v", user)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "beat@example.com", Password: "Str0ng!pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enums.UserRoleFree || claims.Username != "beatsmith" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if ok, _ := manager.HasSession(ctx, claims.ID); !ok {
		t.Fatal("expected session stored for jti")
	}

	if err := svc.Logout(ctx, claims.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if ok, _ := manager.HasSession(ctx, claims.ID); ok {
		t.Fatal("expected session revoked")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := buildTestService(t)
	ctx := context.Background()

	cases := map[string]RegisterRequest{
		"short username": {Username: "ab", Email: "a@example.com", Password: "Str0ng!pass"},
		"weak password":  {Username: "abc", Email: "a@example.com", Password: "weakpass"},
		"no special":     {Username: "abc", Email: "a@example.com", Password: "Weakpass1"},
	}
	for name, req := range cases {
		if _, err := svc.Register(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	if _, err := svc.Register(ctx, RegisterRequest{Username: "first", Email: "dup@example.com", Password: "Str0ng!pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Username: "second", Email: "DUP@example.com", Password: "Str0ng!pass"}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Username: "first", Email: "other@example.com", Password: "Str0ng!pass"}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := buildTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Username: "someone", Email: "s@example.com", Password: "Str0ng!pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, req := range []LoginRequest{
		{Email: "s@example.com", Password: "Wrong!pass"},
		{Email: "missing@example.com", Password: "Str0ng!pass"},
		{Email: " ", Password: "Str0ng!pass"},
	} {
		if _, err := svc.Login(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, manager := buildTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Username: "rotator", Email: "r@example.com", Password: "Str0ng!pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	first, err := svc.Login(ctx, LoginRequest{Email: "r@example.com", Password: "Str0ng!pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(ctx, RefreshRequest{AccessToken: first.AccessToken, RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	oldClaims, _ := pkgAuth.ParseAccessToken(testJWTConfig(), first.AccessToken)
	newClaims, _ := pkgAuth.ParseAccessToken(testJWTConfig(), second.AccessToken)
	if oldClaims.ID == newClaims.ID {
		t.Fatal("expected a new jti")
	}
	if ok, _ := manager.HasSession(ctx, oldClaims.ID); ok {
		t.Fatal("old session should be gone")
	}

	if _, err := svc.Refresh(ctx, RefreshRequest{AccessToken: first.AccessToken, RefreshToken: first.RefreshToken}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected replayed refresh to fail, got %v", err)
	}
	if _, err := svc.Refresh(ctx, RefreshRequest{AccessToken: "garbage", RefreshToken: second.RefreshToken}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected malformed token to fail, got %v", err)
	}
}
