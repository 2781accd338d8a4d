// Package namespace изолирует ключи одного устройства внутри общего хранилища.
package namespace

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store добавляет префикс ко всем ключам вложенного хранилища.
type Store struct {
	inner  domain.KeyValueStore
	prefix string
}

var _ domain.KeyValueStore = (*Store)(nil)

// DevicePrefix возвращает префикс ключей устройства.
func DevicePrefix(deviceID string) string {
	return "device:" + strings.TrimSpace(deviceID) + ":"
}

// New оборачивает inner.
func New(inner domain.KeyValueStore, prefix string) *Store {
	return &Store{inner: inner, prefix: prefix}
}

// ForDevice оборачивает inner префиксом устройства.
func ForDevice(inner domain.KeyValueStore, deviceID string) *Store {
	return New(inner, DevicePrefix(deviceID))
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrKeyRequired
	}
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	return s.inner.Delete(ctx, s.prefix+key)
}

// Prefix возвращает префикс ключей.
func (s *Store) Prefix() string {
	return s.prefix
}
