// Package outbox доставляет события синхронизации корзины из исходящей очереди
// во внешний сервис с повторами, backoff и отправкой в DLQ.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultMaxRetryDelay  = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OutboxMetrics
	DLQPublisher   domain.OutboxPublisher
	Clock          domain.Clock
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
	PublishTimeout time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики воркера.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithClock подменяет источник времени.
func WithClock(clock domain.Clock) Option {
	return func(opts *WorkerOptions) {
		opts.Clock = clock
	}
}

// WithPollInterval задаёт частоту опроса очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithMaxRetryDelay ограничивает задержку между попытками.
func WithMaxRetryDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.MaxRetryDelay = delay
	}
}

// WithPublishTimeout ограничивает одну попытку публикации.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PublishTimeout = timeout
	}
}

// BatchResult — итог одного цикла опроса.
type BatchResult struct {
	Sent   int
	Failed int
}

// Worker публикует pending-сообщения исходящей очереди.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	logger    *log.Entry
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		MaxRetryDelay:  defaultMaxRetryDelay,
		PublishTimeout: defaultPublishTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = defaultMaxRetryDelay
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Run опрашивает очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.opts.PollInterval.String(),
		"batch_size":    w.opts.BatchSize,
		"max_attempts":  w.opts.MaxAttempts,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл: забирает батч и публикует его по порядку.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklog()
	defer w.refreshBacklog()

	events, err := w.repo.PullPending(w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return result
		}

		attempts, err := w.publishWithRetry(ctx, event)
		if err != nil {
			if ctx.Err() != nil {
				// Сообщение остаётся pending до следующего запуска.
				return result
			}
			w.fail(event, attempts, err)
			result.Failed++
			continue
		}

		if err := w.repo.MarkSent(event.ID); err != nil {
			w.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox as sent")
		}
		result.Sent++
	}
	return result
}

func (w *Worker) fail(event domain.OutboxMessage, attempts int, err error) {
	w.logger.WithError(err).WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"attempts":   attempts,
	}).Error("outbox publish failed")
	w.opts.Metrics.RecordPublish(metrics.PublishFailed)

	if dlqErr := w.publishToDLQ(event, attempts, err); dlqErr != nil {
		w.logger.WithError(dlqErr).WithField("outbox_id", event.ID).Warn("failed to publish to DLQ")
		w.opts.Metrics.RecordPublish(metrics.PublishDLQFailed)
	}
	if markErr := w.repo.MarkFailed(event.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", event.ID).Warn("failed to mark outbox as failed")
	}
}

// publishWithRetry возвращает число сделанных попыток и ошибку последней.
// ErrMirrorRejected не повторяется: сервис отклонил запрос окончательно.
func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		err := w.publishOnce(ctx, event)
		if err == nil {
			w.opts.Metrics.RecordPublish(metrics.PublishSent)
			return attempt, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrMirrorRejected) {
			w.opts.Metrics.RecordPublish(metrics.PublishRejected)
			return attempt, err
		}
		w.opts.Metrics.RecordPublish(metrics.PublishRetryError)

		if attempt == w.opts.MaxAttempts {
			break
		}

		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return w.opts.MaxAttempts, fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

func (w *Worker) publishOnce(ctx context.Context, event domain.OutboxMessage) error {
	if w.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.PublishTimeout)
		defer cancel()
	}

	started := time.Now()
	err := w.publisher.Publish(ctx, event)
	w.opts.Metrics.ObservePublishDuration(time.Since(started))
	return err
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.opts.Clock.Now().Sub(stats.OldestPendingAt)
	}
	w.opts.Metrics.SetBacklog(stats.PendingCount, age)
}

// retryBackoff удваивает базовую задержку на каждой попытке, не выходя за MaxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.opts.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay >= w.opts.MaxRetryDelay/2 {
			return w.opts.MaxRetryDelay
		}
		delay *= 2
	}
	if delay > w.opts.MaxRetryDelay {
		return w.opts.MaxRetryDelay
	}
	return delay
}

func (w *Worker) publishToDLQ(event domain.OutboxMessage, attempts int, publishErr error) error {
	if w.opts.DLQPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(domain.NewDeadLetter(event, publishErr, attempts, w.opts.Clock.Now()))
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqCtx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if err := w.opts.DLQPublisher.Publish(dlqCtx, domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
