package auth

import (
	"testing"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestNewAdapterWithCost(t *testing.T) {
	adapter := NewAdapterWithCost("test-secret", 4)
	if adapter.bcryptCost != 4 {
		t.Errorf("expected bcrypt cost 4, got %d", adapter.bcryptCost)
	}
}

func TestHashPassword(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4) // Low cost for faster tests

	hash, err := adapter.HashPassword("mypassword")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "" || hash == "mypassword" {
		t.Errorf("unexpected hash %q", hash)
	}
	if len(hash) < 60 {
		t.Error("expected bcrypt hash to be at least 60 characters")
	}
}

func TestVerifyPassword(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4)

	hash, _ := adapter.HashPassword("correctpassword")

	if !adapter.VerifyPassword("correctpassword", hash) {
		t.Error("expected password verification to succeed")
	}
	if adapter.VerifyPassword("wrongpassword", hash) {
		t.Error("expected password verification to fail for wrong password")
	}
	if adapter.VerifyPassword("correctpassword", "not-a-valid-hash") {
		t.Error("expected verification to fail for invalid hash")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	now := time.Now()
	claims := &domain.TokenClaims{
		Subject:   "admin",
		Email:     "admin@example.com",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.Subject != "admin" {
		t.Errorf("subject = %q, want admin", parsed.Subject)
	}
	if parsed.Email != "admin@example.com" {
		t.Errorf("email = %q, want admin@example.com", parsed.Email)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expires_at = %d, want %d", parsed.ExpiresAt, claims.ExpiresAt)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	adapter := NewAdapter("secret-one")
	other := NewAdapter("secret-two")

	now := time.Now()
	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		Subject:   "admin",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})

	if _, err := other.ParseToken(token); err == nil {
		t.Error("expected parse to fail with wrong secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	now := time.Now()
	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		Subject:   "admin",
		IssuedAt:  now.Add(-2 * time.Hour).Unix(),
		ExpiresAt: now.Add(-time.Hour).Unix(),
	})

	if _, err := adapter.ParseToken(token); err == nil {
		t.Error("expected parse to fail for expired token")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	if _, err := adapter.ParseToken("not.a.jwt"); err == nil {
		t.Error("expected parse to fail for malformed token")
	}
}
