// Package recentlyviewed хранит последние просмотренные товары, новые первыми.
package recentlyviewed

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/observer"
	"github.com/vladislavdragonenkov/storefront/internal/storage/kvjson"
)

// Store — список просмотров длиной не больше domain.RecentlyViewedMaxItems.
type Store struct {
	mu        sync.Mutex
	persister *kvjson.Persister
	clock     domain.Clock
	metrics   *metrics.SessionMetrics
	observers observer.Registry

	entries []domain.RecentlyViewedEntry
}

// New создаёт хранилище просмотров. clock == nil означает системное время.
func New(kv domain.KeyValueStore, clock domain.Clock, logger *log.Entry, m *metrics.SessionMetrics) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = log.WithField("component", "recently-viewed-store")
	}
	var recorder kvjson.Recorder
	if m != nil {
		recorder = m
	}
	return &Store{
		persister: kvjson.NewPersister(kv, metrics.StoreRecentlyViewed, logger, recorder),
		clock:     clock,
		metrics:   m,
		entries:   []domain.RecentlyViewedEntry{},
	}
}

// Load читает список из хранилища.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	s.entries = kvjson.Load[domain.RecentlyViewedEntry](ctx, s.persister, domain.KeyRecentlyViewed)
	if len(s.entries) > domain.RecentlyViewedMaxItems {
		s.entries = s.entries[:domain.RecentlyViewedMaxItems]
	}
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreRecentlyViewed, "load")
	s.observers.Notify()
}

// RecordView переносит товар в начало списка со свежей меткой времени;
// хвост сверх лимита отбрасывается.
func (s *Store) RecordView(ctx context.Context, p domain.Product) error {
	entry, err := domain.NewRecentlyViewedEntry(p, s.clock.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	next := make([]domain.RecentlyViewedEntry, 0, domain.RecentlyViewedMaxItems)
	next = append(next, entry)
	for _, e := range s.entries {
		if e.ProductID == entry.ProductID {
			continue
		}
		if len(next) == domain.RecentlyViewedMaxItems {
			break
		}
		next = append(next, e)
	}
	s.entries = next
	kvjson.Save(ctx, s.persister, domain.KeyRecentlyViewed, s.entries)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreRecentlyViewed, "record_view")
	s.observers.Notify()
	return nil
}

// List возвращает копию списка, новые просмотры первыми.
func (s *Store) List() []domain.RecentlyViewedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RecentlyViewedEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

// Count возвращает длину списка.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear очищает список.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.entries = []domain.RecentlyViewedEntry{}
	kvjson.Save(ctx, s.persister, domain.KeyRecentlyViewed, s.entries)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreRecentlyViewed, "clear")
	s.observers.Notify()
}

// Subscribe регистрирует наблюдателя, вызываемого после каждой мутации.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.observers.Subscribe(fn)
}
