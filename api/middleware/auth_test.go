package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:  "test-secret",
	Audience:   "authenticated",
	CookieName: "sb-access-token",
}

type stubRoles struct {
	role enums.Role
	err  error
}

func (s stubRoles) RoleOf(context.Context, uuid.UUID) (enums.Role, error) {
	return s.role, s.err
}

func mintTestToken(t *testing.T, secret string, sub uuid.UUID, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := auth.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.String(),
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func okHandler(seen *auth.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen, _ = ActorFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testAuthConfig, stubRoles{role: enums.RoleAdmin}, nil)(okHandler(nil))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testAuthConfig, stubRoles{role: enums.RoleAdmin}, nil)(okHandler(nil))

	cases := map[string]string{
		"garbage":      "invalid",
		"wrong secret": mintTestToken(t, "other-secret", uuid.New(), time.Hour),
		"expired":      mintTestToken(t, testAuthConfig.JWTSecret, uuid.New(), -time.Minute),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
		})
	}
}

func TestAuthReadsSessionCookie(t *testing.T) {
	userID := uuid.New()
	var seen auth.Actor
	handler := Auth(testAuthConfig, stubRoles{role: enums.RoleSeller}, nil)(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testAuthConfig.CookieName, Value: mintTestToken(t, testAuthConfig.JWTSecret, userID, time.Hour)})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, seen.UserID)
	assert.Equal(t, enums.RoleSeller, seen.Role)
}

func TestAuthFallsBackToBearer(t *testing.T) {
	userID := uuid.New()
	var seen auth.Actor
	handler := Auth(testAuthConfig, stubRoles{role: enums.RoleCustomer}, nil)(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+mintTestToken(t, testAuthConfig.JWTSecret, userID, time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, seen.UserID)
}

func TestAuthMissingProfileIsForbidden(t *testing.T) {
	handler := Auth(testAuthConfig, stubRoles{err: gorm.ErrRecordNotFound}, nil)(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, testAuthConfig.JWTSecret, uuid.New(), time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAuthLookupFailureIsInternal(t *testing.T) {
	handler := Auth(testAuthConfig, stubRoles{err: errors.New("connection reset")}, nil)(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, testAuthConfig.JWTSecret, uuid.New(), time.Hour))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.RoleAdmin)(okHandler(nil))

	for _, role := range []enums.Role{enums.RoleCustomer, enums.RoleSeller} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), auth.Actor{UserID: uuid.New(), Role: role}))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusForbidden, resp.Code, role)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	var seen auth.Actor
	handler := OptionalAuth(testAuthConfig, stubRoles{role: enums.RoleSeller}, nil)(okHandler(&seen))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, uuid.Nil, seen.UserID)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestOptionalAuthAttachesActor(t *testing.T) {
	userID := uuid.New()
	var seen auth.Actor
	handler := OptionalAuth(testAuthConfig, stubRoles{role: enums.RoleSeller}, nil)(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testAuthConfig.CookieName, Value: mintTestToken(t, testAuthConfig.JWTSecret, userID, time.Hour)})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, seen.UserID)
	assert.Equal(t, enums.RoleSeller, seen.Role)
}
