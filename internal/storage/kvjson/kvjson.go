// Package kvjson сериализует коллекции в key-value хранилище в виде JSON-массивов.
// Все сбои хранилища и битые данные гасятся здесь: вызывающий всегда получает
// валидный (возможно пустой) список, а состояние в памяти остаётся главным.
package kvjson

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Recorder получает сигналы о проглоченных сбоях. Реализуется metrics.SessionMetrics.
type Recorder interface {
	RecordPersistFailure(store, op string)
	RecordCorruptData(store string)
}

type noopRecorder struct{}

func (noopRecorder) RecordPersistFailure(string, string) {}
func (noopRecorder) RecordCorruptData(string)            {}

// Persister привязывает хранилище, логгер и метку коллекции.
type Persister struct {
	kv       domain.KeyValueStore
	logger   *log.Entry
	recorder Recorder
	store    string
}

// NewPersister создаёт Persister. logger и recorder могут быть nil.
func NewPersister(kv domain.KeyValueStore, store string, logger *log.Entry, recorder Recorder) *Persister {
	if logger == nil {
		logger = log.WithField("component", "kvjson")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Persister{
		kv:       kv,
		logger:   logger,
		recorder: recorder,
		store:    store,
	}
}

// Load читает список по ключу. Отсутствующий ключ, ошибка чтения или
// невалидный JSON дают пустой список.
func Load[T any](ctx context.Context, p *Persister, key string) []T {
	raw, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("failed to read persisted collection, using empty")
		p.recorder.RecordPersistFailure(p.store, "get")
		return []T{}
	}
	if !ok || raw == "" {
		return []T{}
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("persisted collection is malformed, using empty")
		p.recorder.RecordCorruptData(p.store)
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

// Save сериализует список целиком. Возвращает false, если запись не удалась;
// ошибка только логируется.
func Save[T any](ctx context.Context, p *Persister, key string, items []T) bool {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("failed to marshal collection")
		p.recorder.RecordPersistFailure(p.store, "marshal")
		return false
	}
	if err := p.kv.Set(ctx, key, string(payload)); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("failed to persist collection, keeping in-memory state")
		p.recorder.RecordPersistFailure(p.store, "set")
		return false
	}
	return true
}

// Delete удаляет ключ. Возвращает false, если удаление не удалось.
func (p *Persister) Delete(ctx context.Context, key string) bool {
	if err := p.kv.Delete(ctx, key); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("failed to delete persisted collection")
		p.recorder.RecordPersistFailure(p.store, "delete")
		return false
	}
	return true
}

// Exists сообщает, есть ли ключ в хранилище. Ошибка чтения трактуется как отсутствие.
func (p *Persister) Exists(ctx context.Context, key string) bool {
	_, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Debug("failed to probe key")
		return false
	}
	return ok
}
