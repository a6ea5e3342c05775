package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/model"
)

func newTestAuth(t *testing.T, staticKeys ...string) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	auth := NewAuthService(store, "test-secret-key-for-jwt", staticKeys)
	return auth, store
}

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, "ci-bot", 1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.Subject != "ci-bot" {
		t.Errorf("Subject: got %q, want %q", principal.Subject, "ci-bot")
	}
}

func TestJWTExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	// Issue a token with negative TTL (already expired)
	token, err := auth.IssueJWT(ctx, "ci-bot", -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	_, err = auth.ValidateJWT(ctx, token)
	if err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.ValidateJWT(ctx, "garbage.token.here")
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestJWTWrongSecret(t *testing.T) {
	auth, store := newTestAuth(t)
	other := NewAuthService(store, "another-secret", nil)
	ctx := context.Background()

	token, err := other.IssueJWT(ctx, "ci-bot", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if _, err := auth.ValidateJWT(ctx, token); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestJWTWithoutSecret(t *testing.T) {
	auth := NewAuthService(nil, "", nil)
	if _, err := auth.IssueJWT(context.Background(), "x", time.Hour); err == nil {
		t.Error("expected error issuing without a secret")
	}
	if _, err := auth.ValidateJWT(context.Background(), "a.b.c"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestStaticAPIKey(t *testing.T) {
	auth := NewAuthService(nil, "", []string{"first-key", "", "second-key"})
	ctx := context.Background()

	for _, key := range []string{"first-key", "second-key"} {
		principal, err := auth.ValidateAPIKey(ctx, key)
		if err != nil {
			t.Fatalf("ValidateAPIKey(%q): %v", key, err)
		}
		if principal.KeyID != 0 || principal.Label != "config" {
			t.Errorf("principal = %+v, want config key", principal)
		}
	}

	for _, key := range []string{"", "first-ke", "third-key"} {
		if _, err := auth.ValidateAPIKey(ctx, key); err != ErrInvalidCredentials {
			t.Errorf("ValidateAPIKey(%q): expected ErrInvalidCredentials, got %v", key, err)
		}
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	rawKey := "askdb_test_key_abcdef123456"
	key := &model.APIKey{
		KeyHash:   config.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:14],
		Label:     "test",
		IsActive:  true,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	principal, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if principal.KeyID != key.ID {
		t.Errorf("KeyID: got %d, want %d", principal.KeyID, key.ID)
	}
	if principal.Label != "test" {
		t.Errorf("Label: got %q, want test", principal.Label)
	}

	_, err = auth.ValidateAPIKey(ctx, "wrong_key")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	rawKey := "askdb_revoke_test_key"
	key := &model.APIKey{
		KeyHash:   config.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:14],
		Label:     "revoke-test",
		IsActive:  true,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := store.RevokeAPIKeyByPrefix(ctx, key.KeyPrefix); err != nil {
		t.Fatalf("RevokeAPIKeyByPrefix: %v", err)
	}

	_, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	rawKey := "askdb_expired_key"
	key := &model.APIKey{
		KeyHash:   config.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:14],
		IsActive:  true,
		ExpiresAt: &past,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	if _, err := auth.ValidateAPIKey(ctx, rawKey); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	raw, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(raw, KeyPrefix) || len(raw) != len(KeyPrefix)+64 {
		t.Errorf("raw key %q has unexpected shape", raw)
	}
	if !strings.HasPrefix(raw, prefix) || len(prefix) != len(KeyPrefix)+8 {
		t.Errorf("prefix %q does not match key %q", prefix, raw)
	}

	other, _, _ := GenerateAPIKey()
	if other == raw {
		t.Error("two generated keys should differ")
	}
}
