package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type stubIdempotencyStore struct {
	mu         sync.Mutex
	keys       map[string]bool
	acquireErr error
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{keys: make(map[string]bool)}
}

func (s *stubIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}

func TestIdempotency(t *testing.T) {
	store := newStubIdempotencyStore()

	status := http.StatusCreated
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	do := func(identity, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		req = req.WithContext(WithIdentity(req.Context(), model.Identity(identity)))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, do("ana", "k1"))
	assert.Equal(t, http.StatusConflict, do("ana", "k1"))
	assert.Equal(t, 1, calls)

	// Ключи разных пользователей не пересекаются.
	assert.Equal(t, http.StatusCreated, do("leo", "k1"))

	// Без ключа повтор не ограничивается.
	assert.Equal(t, http.StatusCreated, do("ana", ""))
	assert.Equal(t, http.StatusCreated, do("ana", ""))

	// Неудачный запрос освобождает ключ.
	status = http.StatusConflict
	assert.Equal(t, http.StatusConflict, do("ana", "k2"))
	status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, do("ana", "k2"))
}

func TestIdempotency_StoreError(t *testing.T) {
	store := newStubIdempotencyStore()
	store.acquireErr = errors.New("redis down")

	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set(IdempotencyKeyHeader, "k1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal"}`, w.Body.String())
}
