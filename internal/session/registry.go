package session

import (
	"context"
	"fmt"
	"sync"
	"weak"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultRegistrySize — сколько сессий держится в памяти одновременно.
const DefaultRegistrySize = 1024

// Registry хранит ограниченное число живых сессий. Вытесненная сессия
// теряет только состояние в памяти: данные остаются в хранилище и
// подгружаются при следующем обращении.
//
// На устройство всегда приходится не больше одного *Session: пока
// вытесненную сессию держит незавершённый запрос, Get возвращает её же,
// а не загружает вторую копию поверх тех же ключей.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Session]
	evicted map[string]weak.Pointer[Session]
	size    int
	deps    Deps
	logger  *log.Entry
}

// NewRegistry создаёт реестр на size сессий; при size <= 0 берётся DefaultRegistrySize.
func NewRegistry(size int, deps Deps) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "session-registry")
	}

	r := &Registry{
		evicted: make(map[string]weak.Pointer[Session]),
		size:    size,
		deps:    deps,
		logger:  logger,
	}
	// Вызывается из Add и Remove, то есть под r.mu.
	cache, err := lru.NewWithEvict[string, *Session](size, func(deviceID string, s *Session) {
		r.rememberEvicted(deviceID, s)
		r.logger.WithField("device_id", deviceID).Debug("session evicted from registry")
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Get возвращает сессию устройства, создавая и загружая её при промахе.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Session, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache.Get(deviceID); ok {
		return s, nil
	}
	if s := r.takeEvicted(deviceID); s != nil {
		r.cache.Add(deviceID, s)
		r.deps.Metrics.SetActiveSessions(r.cache.Len())
		return s, nil
	}

	s, err := New(ctx, deviceID, r.deps)
	if err != nil {
		return nil, err
	}
	r.cache.Add(deviceID, s)
	r.deps.Metrics.SetActiveSessions(r.cache.Len())
	return s, nil
}

// Forget выгружает сессию устройства из памяти.
func (r *Registry) Forget(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Remove(deviceID)
	r.deps.Metrics.SetActiveSessions(r.cache.Len())
}

func (r *Registry) rememberEvicted(deviceID string, s *Session) {
	r.evicted[deviceID] = weak.Make(s)
	if len(r.evicted) <= r.size {
		return
	}
	for id, ptr := range r.evicted {
		if ptr.Value() == nil {
			delete(r.evicted, id)
		}
	}
}

// takeEvicted возвращает вытесненную сессию, если её ещё кто-то держит.
func (r *Registry) takeEvicted(deviceID string) *Session {
	ptr, ok := r.evicted[deviceID]
	if !ok {
		return nil
	}
	delete(r.evicted, deviceID)
	return ptr.Value()
}

// Len возвращает число сессий в памяти.
func (r *Registry) Len() int {
	return r.cache.Len()
}
