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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/saga-coordinator/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func buyInRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/business/buy-in", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func TestReplayTTLSelection(t *testing.T) {
	ttl, ok := replayTTL(httptest.NewRequest(http.MethodPost, "/api/business/cash-out", nil))
	assert.True(t, ok)
	assert.Equal(t, businessIdempotencyTTL, ttl)

	_, ok = replayTTL(httptest.NewRequest(http.MethodPost, "/api/saga/init", nil))
	assert.False(t, ok)
	_, ok = replayTTL(httptest.NewRequest(http.MethodGet, "/api/business/buy-in", nil))
	assert.False(t, ok)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))

	for range 2 {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, buyInRequest(`{"currency":"HKD"}`, ""))
		assert.Equal(t, http.StatusAccepted, resp.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":{"transactionId":"t-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, buyInRequest(`{"currency":"HKD"}`, "abc"))
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, buyInRequest(`{"currency":"HKD"}`, "abc"))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"data":{"transactionId":"t-1"}}`, replay.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), buyInRequest(`{"currency":"HKD"}`, "xyz"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, buyInRequest(`{"currency":"USD"}`, "xyz"))
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), buyInRequest(`{}`, "k"))
	handler.ServeHTTP(httptest.NewRecorder(), buyInRequest(`{}`, "k"))
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}
