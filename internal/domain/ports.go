package domain

import (
	"context"
	"time"
)

// KeyValueStore — локальное строковое key-value хранилище (аналог browser storage).
type KeyValueStore interface {
	// Get возвращает значение и признак наличия ключа.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set сохраняет значение; ошибки вызывающий может проигнорировать.
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не является.
	Delete(ctx context.Context, key string) error
}

// IdentitySource определяет «чьи это данные» в момент вызова.
type IdentitySource interface {
	// CurrentIdentity никогда не возвращает ошибку: при любой проблеме возвращается Guest.
	CurrentIdentity(ctx context.Context) Identity
	// SessionToken возвращает токен аутентифицированной сессии, если он есть.
	SessionToken(ctx context.Context) (string, bool)
}

// OutboxPublisher доставляет событие из outbox наружу; должен быть идемпотентным.
type OutboxPublisher interface {
	Publish(ctx context.Context, event OutboxMessage) error
}

// MirrorQueue — исходящая очередь, в которую мутаторы ставят задачи синхронизации.
type MirrorQueue interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository хранит события до публикации.
type OutboxRepository interface {
	MirrorQueue
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// Агрегаты и типы событий исходящей очереди.
const (
	AggregateCart       = "cart"
	EventCartItemAdded  = "cart.item_added"
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// CartItemAddedPayload — полезная нагрузка события cart.item_added.
// Токен сюда не попадает: payload уходит в Kafka, DLQ и таблицу outbox.
type CartItemAddedPayload struct {
	ProductID int64 `json:"productId"`
	Qty       int   `json:"qty"`
}
