package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: map[string]int64{}}
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func limitedRequest(remote string, actor *auth.Actor) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/complete", nil)
	req.RemoteAddr = remote
	if actor != nil {
		req = req.WithContext(WithActor(req.Context(), *actor))
	}
	return req
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("payment", time.Minute, 2, 2), newFakeLimiter(), nil)(okHandler(nil))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, limitedRequest("1.2.3.4:5678", nil))
		require.Equal(t, http.StatusOK, resp.Code)
	}
}

func TestRateLimitIPLimitTriggers(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("payment", time.Minute, 1, 0), newFakeLimiter(), nil)(okHandler(nil))

	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest("5.6.7.8:1234", nil))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, limitedRequest("5.6.7.8:1234", nil))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "60", resp.Header().Get("Retry-After"))

	var payload struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, limitedRequest("9.9.9.9:1234", nil))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimitCallerLimitSpansAddresses(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("payment", time.Minute, 0, 1), newFakeLimiter(), nil)(okHandler(nil))
	actor := &auth.Actor{UserID: uuid.New()}

	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest("1.1.1.1:1", actor))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, limitedRequest("2.2.2.2:1", actor))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	limiter := newFakeLimiter()
	limiter.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("payment", time.Minute, 1, 0), limiter, nil)(okHandler(nil))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, limitedRequest("1.2.3.4:1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	limiter := newFakeLimiter()
	handler := RateLimit(NewRateLimitPolicy("payment", 0, 1, 1), limiter, nil)(okHandler(nil))

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, limitedRequest("1.2.3.4:1", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
	assert.Empty(t, limiter.counts)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 10.0.0.1 , 10.0.0.2")
	req.RemoteAddr = "127.0.0.1:9000"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "127.0.0.1", clientIP(req))
}
