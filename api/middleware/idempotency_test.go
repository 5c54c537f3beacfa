package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func (f *fakeStore) only(t *testing.T) (string, savedResponse) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.data, 1)
	for key, raw := range f.data {
		var saved savedResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &saved))
		return key, saved
	}
	return "", savedResponse{}
}

func adminPost(url, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
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

func TestReplayWindow(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/admin/sms/manual/abc/attach", replayTTL, true},
		{http.MethodPost, "/admin/sms/manual/abc/dismiss/", replayTTL, true},
		{http.MethodPost, "/admin/sms/manual/abc/retry", replayTTL, true},
		{http.MethodPost, "/admin/sms/parser/prompts", replayTTL, true},
		{http.MethodPost, "/admin/sms/parser/prompts/p1/activate", replayTTL, true},
		{http.MethodPost, "/admin/payments/p1/fail", longReplayTTL, true},
		{http.MethodPost, "/admin/sms/manual/a/b/attach", 0, false},
		{http.MethodPost, "/admin/sms/parser/test", 0, false},
		{http.MethodPost, "/sms/inbound", 0, false},
		{http.MethodGet, "/admin/sms/manual", 0, false},
	}
	for _, tc := range cases {
		ttl, ok := replayWindow(tc.method, tc.path)
		require.Equal(t, tc.ok, ok, tc.path)
		require.Equal(t, tc.want, ttl, tc.path)
	}
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, adminPost("/admin/sms/manual/abc/retry", `{}`, ""))
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Empty(t, rec.Header().Get("Idempotent-Replayed"))
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, adminPost("/admin/sms/manual/abc/retry", `{"note":"x"}`, "k1"))
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))

	key, saved := store.only(t)
	require.False(t, saved.Pending)
	require.Equal(t, replayTTL, store.ttls[key])

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, adminPost("/admin/sms/manual/abc/retry", `{"note":"x"}`, "k1"))
	require.Equal(t, http.StatusAccepted, again.Code)
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, `{"ok":true}`, again.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), adminPost("/admin/payments/p1/fail", `{"reason":"a"}`, "k"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminPost("/admin/payments/p1/fail", `{"reason":"b"}`, "k"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner http.Handler
	outer := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The duplicate arrives while the first request is still running.
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, adminPost(r.URL.Path, `{}`, "k"))
		require.Equal(t, http.StatusConflict, dup.Code)
		require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, dup))
		w.WriteHeader(http.StatusOK)
	}))
	inner = Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("duplicate must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	outer.ServeHTTP(rec, adminPost("/admin/sms/manual/abc/attach", `{}`, "k"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminPost("/admin/sms/manual/abc/dismiss", `{}`, "k"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, store.data)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, adminPost("/admin/sms/manual/abc/dismiss", `{}`, "k"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyScopeIsPerUser(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, userID := range []string{"user-a", "user-b"} {
		req := adminPost("/admin/payments/p1/fail", `{"reason":"refund"}`, "same")
		req = req.WithContext(context.WithValue(req.Context(), ctxUserID, userID))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Equal(t, 2, calls)
	require.Len(t, store.data, 2)
	for key := range store.data {
		require.NotContains(t, key, "user-")
	}
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminPost("/admin/sms/parser/test", `{}`, ""))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
