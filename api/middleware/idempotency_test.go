package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func idempotentPost(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	cases := map[string]struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		"checkout":              {http.MethodPost, "/api/v1/checkout", checkoutIdempotencyTTL, true},
		"trailing slash":        {http.MethodPost, "/api/v1/checkout/", checkoutIdempotencyTTL, true},
		"cart checkout":         {http.MethodPost, "/api/v1/checkout/cart", checkoutIdempotencyTTL, true},
		"subscription checkout": {http.MethodPost, "/api/v1/subscriptions/checkout", checkoutIdempotencyTTL, true},
		"register":              {http.MethodPost, "/api/v1/auth/register", defaultIdempotencyTTL, true},
		"verify":                {http.MethodGet, "/api/v1/checkout/verify", 0, false},
		"login":                 {http.MethodPost, "/api/v1/auth/login", 0, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ttl, ok := routeTTL(tc.method, tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, ttl)
		})
	}
}

func TestIdempotencyPassesThroughUnlistedRoutes(t *testing.T) {
	called := false
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), idempotentPost("/api/v1/auth/login", "", `{}`))
	assert.True(t, called)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("/api/v1/auth/register", "", `{"email":"a@b.co"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sessionId":"cs_1"}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentPost("/api/v1/checkout", "k1", `{"items":[]}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentPost("/api/v1/checkout/", "k1", `{"items":[]}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"sessionId":"cs_1"}`, second.Body.String())
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), idempotentPost("/api/v1/auth/register", "k2", `{"email":"a@b.co"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("/api/v1/auth/register", "k2", `{"email":"c@d.co"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsRetryWhileInFlight(t *testing.T) {
	store := newMemoryStore()
	var inner http.Handler
	outerCalls := 0
	var nested *httptest.ResponseRecorder

	inner = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outerCalls++
		if outerCalls == 1 {
			// A duplicate arrives before the first attempt has written.
			nested = httptest.NewRecorder()
			inner.ServeHTTP(nested, idempotentPost("/api/v1/checkout/cart", "k3", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	inner.ServeHTTP(rec, idempotentPost("/api/v1/checkout/cart", "k3", `{}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, outerCalls)
	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, nested))
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentPost("/api/v1/subscriptions/checkout", "k4", `{}`))
	require.Equal(t, http.StatusBadGateway, first.Code)
	assert.Empty(t, store.data)

	retry := httptest.NewRecorder()
	h.ServeHTTP(retry, idempotentPost("/api/v1/subscriptions/checkout", "k4", `{}`))
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	for _, user := range []string{"user-a", "user-b"} {
		req := idempotentPost("/api/v1/checkout", "shared", `{"items":[]}`)
		req = req.WithContext(WithUserID(req.Context(), user))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}
