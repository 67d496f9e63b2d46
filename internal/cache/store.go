package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"innsync/internal/config"

	"github.com/redis/go-redis/v9"
)

// Store is the pass-through layer over the key-value store holding per-day
// cache entries. It carries no business logic: a missing key is simply
// absent from a read, never an error.
type Store struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Write stores every entry as JSON under its key. Entries are written in one
// pipeline; each day is its own key, so readers can never observe a
// partially-written day.
func (s *Store) Write(ctx context.Context, entries map[string]any) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for key, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
		}
		pipe.Set(ctx, key, data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache entries: %w", err)
	}
	return nil
}

// ReadMany bulk-reads raw values for the given keys. Keys without a value
// are omitted from the result.
func (s *Store) ReadMany(ctx context.Context, keys []string) (map[string]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}

	result := make(map[string]string, len(keys))
	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type for key %s", keys[i])
		}
		result[keys[i]] = raw
	}
	return result, nil
}

// Ping проверяет соединение с Redis.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
