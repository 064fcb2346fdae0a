package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevault/payments/internal/repository/postgres"
)

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, entry *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func serveIdempotent(t *testing.T, store IdempotencyStore, key, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	Idempotency(store)(handler).ServeHTTP(w, req)
	return w
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}

	serveIdempotent(t, store, "", `{"a":1}`, handler)
	serveIdempotent(t, store, "", `{"a":1}`, handler)

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"p1"}`))
	}

	first := serveIdempotent(t, store, "key-1", `{"a":1}`, handler)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))

	second := serveIdempotent(t, store, "key-1", `{"a":1}`, handler)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"id":"p1"}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ReusedKeyDifferentBodyRejected(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}

	serveIdempotent(t, store, "key-1", `{"a":1}`, handler)
	w := serveIdempotent(t, store, "key-1", `{"a":2}`, handler)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "different request body")
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorsNotCached(t *testing.T) {
	store := newMemoryIdempotencyStore()
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}

	serveIdempotent(t, store, "key-1", `{"a":1}`, handler)
	assert.Empty(t, store.entries)
}

func TestIdempotency_HandlerSeesBody(t *testing.T) {
	store := newMemoryIdempotencyStore()
	var got string
	handler := func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 64)
		n, _ := r.Body.Read(b)
		got = string(b[:n])
		w.WriteHeader(http.StatusOK)
	}

	serveIdempotent(t, store, "key-1", `{"a":1}`, handler)
	require.Equal(t, `{"a":1}`, got)
}
