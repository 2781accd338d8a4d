// Package compare хранит до четырёх снимков товаров для сравнения.
// Набор общий для устройства и не разделяется по идентичности.
package compare

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/observer"
	"github.com/vladislavdragonenkov/storefront/internal/storage/kvjson"
)

// Store — ограниченный набор CompareEntry с сохранением порядка вставки.
type Store struct {
	mu        sync.Mutex
	persister *kvjson.Persister
	metrics   *metrics.SessionMetrics
	logger    *log.Entry
	observers observer.Registry

	entries []domain.CompareEntry
}

// New создаёт набор сравнения. logger и m могут быть nil.
func New(kv domain.KeyValueStore, logger *log.Entry, m *metrics.SessionMetrics) *Store {
	if logger == nil {
		logger = log.WithField("component", "compare-store")
	}
	var recorder kvjson.Recorder
	if m != nil {
		recorder = m
	}
	return &Store{
		persister: kvjson.NewPersister(kv, metrics.StoreCompare, logger, recorder),
		metrics:   m,
		logger:    logger,
		entries:   []domain.CompareEntry{},
	}
}

// Load читает набор из хранилища; битые данные дают пустой набор.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	s.entries = kvjson.Load[domain.CompareEntry](ctx, s.persister, domain.KeyCompare)
	if len(s.entries) > domain.CompareMaxItems {
		s.entries = s.entries[:domain.CompareMaxItems]
	}
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCompare, "load")
	s.observers.Notify()
}

// Add добавляет снимок товара. Отказы ErrCompareAlreadyPresent и
// ErrCompareLimitExceeded оставляют набор без изменений.
func (s *Store) Add(ctx context.Context, p domain.Product) error {
	entry, err := domain.NewCompareEntry(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.indexOf(entry.ProductID) >= 0 {
		s.mu.Unlock()
		s.reject(domain.ErrCompareAlreadyPresent, entry.ProductID)
		return domain.ErrCompareAlreadyPresent
	}
	if len(s.entries) >= domain.CompareMaxItems {
		s.mu.Unlock()
		s.reject(domain.ErrCompareLimitExceeded, entry.ProductID)
		return domain.ErrCompareLimitExceeded
	}
	s.entries = append(s.entries, entry)
	kvjson.Save(ctx, s.persister, domain.KeyCompare, s.entries)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCompare, "add")
	s.observers.Notify()
	return nil
}

// Remove удаляет запись; отсутствие записи не ошибка.
func (s *Store) Remove(ctx context.Context, productID int64) {
	s.mu.Lock()
	if idx := s.indexOf(productID); idx >= 0 {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	}
	kvjson.Save(ctx, s.persister, domain.KeyCompare, s.entries)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCompare, "remove")
	s.observers.Notify()
}

// Clear очищает набор.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.entries = []domain.CompareEntry{}
	kvjson.Save(ctx, s.persister, domain.KeyCompare, s.entries)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCompare, "clear")
	s.observers.Notify()
}

// Contains проверяет наличие товара в наборе.
func (s *Store) Contains(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(productID) >= 0
}

// Entries возвращает независимые копии записей.
func (s *Store) Entries() []domain.CompareEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CompareEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

// Count возвращает число записей.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe регистрирует наблюдателя, вызываемого после каждой мутации.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.observers.Subscribe(fn)
}

func (s *Store) indexOf(productID int64) int {
	for i, e := range s.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) reject(err error, productID int64) {
	reason := domain.CompareRejectReason(err)
	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"reason":     reason,
	}).Debug("compare add rejected")
	s.metrics.RecordRejection(reason)
}
