package domain

import (
	"encoding/json"
	"time"
)

// DeadLetter — событие, исчерпавшее попытки публикации, вместе с причиной.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	Attempts       int             `json:"attempts"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter упаковывает сообщение и ошибку последней попытки.
func NewDeadLetter(msg OutboxMessage, publishErr error, attempts int, at time.Time) DeadLetter {
	dl := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		Attempts:       attempts,
		DLQPublishedAt: at.UTC(),
	}
	if publishErr != nil {
		dl.PublishError = publishErr.Error()
	}
	return dl
}

// Message восстанавливает исходное outbox-сообщение для повторной постановки в очередь.
func (d DeadLetter) Message() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}
