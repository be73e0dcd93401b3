package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// IdempotencyKeyHeader содержит ключ идемпотентности запроса.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyStore хранит занятые ключи идемпотентности.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency отклоняет повтор запроса с тем же Idempotency-Key ответом 409.
// Ключ освобождается, если запрос завершился ошибкой, чтобы его можно было повторить.
// Запросы без заголовка пропускаются как есть. Должен стоять после AuthMiddleware.
func Idempotency(store IdempotencyStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyKeyHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, _ := GetIdentityFromContext(r.Context())
			key := string(identity) + ":" + r.Method + ":" + r.URL.Path + ":" + header

			ok, err := store.Acquire(r.Context(), key)
			if err != nil {
				logger.Error("acquire idempotency key", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Internal")
				return
			}
			if !ok {
				writeError(w, http.StatusConflict, "DuplicateRequest")
				return
			}

			data := &responseData{}
			next.ServeHTTP(&loggingResponseWriter{ResponseWriter: w, data: data}, r)

			if data.status >= http.StatusBadRequest {
				if err := store.Release(context.WithoutCancel(r.Context()), key); err != nil {
					logger.Warn("release idempotency key", zap.Error(err))
				}
			}
		})
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
