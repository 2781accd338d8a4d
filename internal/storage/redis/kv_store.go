// Package redis реализует KeyValueStore поверх Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// NewClient создаёт клиента и проверяет соединение.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// KVStore хранит значения под ключами "<prefix><key>" с необязательным TTL.
type KVStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ domain.KeyValueStore = (*KVStore)(nil)

// NewKVStore создаёт хранилище. При ttl == 0 ключи не истекают.
func NewKVStore(client *goredis.Client, prefix string, ttl time.Duration) *KVStore {
	return &KVStore{client: client, prefix: prefix, ttl: ttl}
}

// Get возвращает значение по ключу.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrKeyRequired
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

// Set сохраняет значение, продлевая TTL.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиента.
func (s *KVStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
