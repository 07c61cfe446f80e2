package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// StatusCache кэширует терминальные состояния транзакций, чтобы опрос
// статуса покупателем не ходил в Postgres. Nil-значение безопасно: все
// методы становятся no-op, кэш можно не разворачивать.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusCache подключается к Redis. Пустой адрес отключает кэш.
func NewStatusCache(addr, password string, ttl time.Duration) (*StatusCache, error) {
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &StatusCache{rdb: rdb, ttl: ttl}, nil
}

func (c *StatusCache) key(transactionID uuid.UUID) string {
	return fmt.Sprintf("txstate:%s", transactionID)
}

// SetState запоминает состояние транзакции. Кэшируются только терминальные
// состояния, поэтому устаревание значения невозможно.
func (c *StatusCache) SetState(ctx context.Context, transactionID uuid.UUID, state string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Set(ctx, c.key(transactionID), state, c.ttl).Err()
}

// GetState возвращает закэшированное состояние либо пустую строку.
func (c *StatusCache) GetState(ctx context.Context, transactionID uuid.UUID) (string, error) {
	if c == nil {
		return "", nil
	}
	state, err := c.rdb.Get(ctx, c.key(transactionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: get state: %w", err)
	}
	return state, nil
}

func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
