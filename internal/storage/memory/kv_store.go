package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// kvStoreInMemory — потокобезопасное key-value хранилище в памяти.
// Квота эмулирует ограничение browser storage: суммарный размер ключей и значений.
type kvStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]string
	quota int
	used  int
}

// KVOption настраивает in-memory хранилище.
type KVOption func(*kvStoreInMemory)

// WithQuota ограничивает суммарный размер данных в байтах (0 отключает ограничение).
func WithQuota(bytes int) KVOption {
	return func(s *kvStoreInMemory) {
		s.quota = bytes
	}
}

// NewKeyValueStore создаёт in-memory реализацию KeyValueStore.
func NewKeyValueStore(opts ...KVOption) *kvStoreInMemory {
	s := &kvStoreInMemory{items: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *kvStoreInMemory) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok, nil
}

func (s *kvStoreInMemory) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used
	if old, ok := s.items[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if s.quota > 0 && used > s.quota {
		return domain.ErrStorageQuotaExceeded
	}
	s.items[key] = value
	s.used = used
	return nil
}

func (s *kvStoreInMemory) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.items[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.items, key)
	}
	return nil
}

// Keys возвращает отсортированный список ключей (используется в тестах и диагностике).
func (s *kvStoreInMemory) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ domain.KeyValueStore = (*kvStoreInMemory)(nil)
