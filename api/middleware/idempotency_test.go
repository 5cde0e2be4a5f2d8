package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ops  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.ops = append(f.ops, "setnx")
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) SetXX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.ops = append(f.ops, "setxx")
	if _, ok := f.data[key]; !ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.ops = append(f.ops, "del")
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func idempotentRequest(actor auth.Actor, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/complete", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithActor(req.Context(), actor))
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	actor := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(actor, "", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(actor, "", `{}`))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	actor := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(actor, "abc", `{"a":1}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, idempotentRequest(actor, "abc", `{"a":1}`))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyIsScopedPerCaller(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(auth.Actor{UserID: uuid.New()}, "same", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(auth.Actor{UserID: uuid.New()}, "same", `{}`))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	actor := auth.Actor{UserID: uuid.New()}

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(actor, "k", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(actor, "k", `{}`))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	actor := auth.Actor{UserID: uuid.New()}

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(actor, "xyz", `{"foo":"bar"}`))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(actor, "xyz", `{"foo":"diff"}`))
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	actor := auth.Actor{UserID: uuid.New()}
	var inner *httptest.ResponseRecorder

	var handler http.Handler
	handler = Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			// a retry lands while this request is still running
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, idempotentRequest(actor, "dup", `{}`))
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(actor, "dup", `{}`))
	assert.Equal(t, http.StatusOK, first.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)

	var record idempotencyRecord
	for _, raw := range store.data {
		require.NoError(t, json.Unmarshal([]byte(raw), &record))
	}
	assert.False(t, record.Pending)
	assert.Equal(t, http.StatusOK, record.Status)
}

func TestIdempotencyOverwritesPendingClaimInPlace(t *testing.T) {
	store := newFakeStore()
	actor := auth.Actor{UserID: uuid.New()}
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(actor, "swap", `{}`))
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, []string{"setnx", "setxx"}, store.ops)
	require.Len(t, store.data, 1)
	for _, raw := range store.data {
		var record idempotencyRecord
		require.NoError(t, json.Unmarshal([]byte(raw), &record))
		assert.False(t, record.Pending)
		assert.Equal(t, http.StatusCreated, record.Status)
	}
}

func TestIdempotencySkipsStoringWhenClaimExpired(t *testing.T) {
	store := newFakeStore()
	actor := auth.Actor{UserID: uuid.New()}
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key := range store.data {
			delete(store.data, key)
		}
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(actor, "late", `{}`))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, store.data)
	assert.NotContains(t, store.ops, "del")
}
