package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func signTestToken(t *testing.T, secret string, method jwt.SigningMethod, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) SessionClaims {
	now := time.Now()
	return SessionClaims{
		Email: "buyer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestParseSessionToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret", Audience: "authenticated"}
	userID := uuid.New()

	token := signTestToken(t, "secret", jwt.SigningMethodHS256, validClaims(userID.String()))
	claims, err := ParseSessionToken(cfg, token)
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}
	got, err := claims.UserID()
	if err != nil || got != userID {
		t.Fatalf("expected user %s, got %s err=%v", userID, got, err)
	}
	if claims.Email != "buyer@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
}

func TestParseSessionTokenRejects(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret", Audience: "authenticated"}
	userID := uuid.NewString()

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := validClaims(userID)
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	noExpiry := validClaims(userID)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signTestToken(t, "other", jwt.SigningMethodHS256, validClaims(userID))},
		{"wrong method", signTestToken(t, "secret", jwt.SigningMethodHS512, validClaims(userID))},
		{"expired", signTestToken(t, "secret", jwt.SigningMethodHS256, expired)},
		{"audience", signTestToken(t, "secret", jwt.SigningMethodHS256, wrongAudience)},
		{"no expiry", signTestToken(t, "secret", jwt.SigningMethodHS256, noExpiry)},
		{"non uuid subject", signTestToken(t, "secret", jwt.SigningMethodHS256, validClaims("user-1"))},
	}
	for _, tt := range tests {
		if _, err := ParseSessionToken(cfg, tt.token); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}

	if _, err := ParseSessionToken(cfg, "  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestParseSessionTokenRequiresSecret(t *testing.T) {
	if _, err := ParseSessionToken(config.AuthConfig{}, "x"); err == nil {
		t.Fatal("expected missing secret error")
	}
}
