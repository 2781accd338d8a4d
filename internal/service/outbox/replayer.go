package outbox

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// ErrUnsupportedEvent — событие из DLQ, которое нельзя вернуть в очередь.
var ErrUnsupportedEvent = errors.New("unsupported dead letter event")

// Replayer возвращает недоставленные события в исходящую очередь под новым ID.
type Replayer struct {
	queue   domain.MirrorQueue
	logger  *log.Entry
	metrics *metrics.OutboxMetrics
}

// NewReplayer создаёт Replayer. logger и m могут быть nil.
func NewReplayer(queue domain.MirrorQueue, logger *log.Entry, m *metrics.OutboxMetrics) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replayer")
	}
	return &Replayer{queue: queue, logger: logger, metrics: m}
}

// Replay ставит событие заново. Неизвестные типы событий не повторяются.
func (r *Replayer) Replay(_ context.Context, dl domain.DeadLetter) error {
	if dl.EventType != domain.EventCartItemAdded {
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, dl.EventType)
	}

	msg := dl.Message()
	msg.ID = ""
	stored, err := r.queue.Enqueue(msg)
	if err != nil {
		return fmt.Errorf("re-enqueue dead letter %s: %w", dl.OutboxID, err)
	}

	r.logger.WithFields(log.Fields{
		"original_id": dl.OutboxID,
		"outbox_id":   stored.ID,
		"attempts":    dl.Attempts,
	}).Info("dead letter replayed")
	r.metrics.RecordPublish(metrics.PublishReplayed)
	return nil
}
