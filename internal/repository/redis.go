package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// RedisIdempotency хранит ключи идемпотентности запросов в Redis.
type RedisIdempotency struct {
	client *redis.Client
}

// NewRedisIdempotency создаёт хранилище ключей идемпотентности поверх клиента Redis.
func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

// Acquire занимает ключ. Возвращает false, если ключ уже занят другим запросом.
func (r *RedisIdempotency) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return ok, nil
}

// Release освобождает ключ, чтобы запрос можно было повторить.
func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}
	return nil
}
