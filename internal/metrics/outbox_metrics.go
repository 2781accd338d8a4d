package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox-сообщений.
const (
	PublishSent       = "sent"
	PublishRetryError = "retry_error"
	PublishRejected   = "rejected"
	PublishFailed     = "failed"
	PublishDLQFailed  = "dlq_failed"
	PublishReplayed   = "replayed"
)

// OutboxMetrics описывает состояние исходящей очереди синхронизации.
type OutboxMetrics struct {
	publishAttempts *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestAge       prometheus.Gauge
	publishDuration prometheus.Histogram
}

// NewOutboxMetrics создаёт метрики в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в заданном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_outbox_publish_duration_seconds",
		Help:    "Duration of a single outbox publish attempt",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	if err := registerer.Register(histogram); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				histogram = existing
			}
		}
	}

	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in the outbound queue",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbound record",
		}),
		publishDuration: histogram,
	}
}

// RecordPublish учитывает результат попытки публикации.
func (m *OutboxMetrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

// ObservePublishDuration учитывает длительность попытки.
func (m *OutboxMetrics) ObservePublishDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(d.Seconds())
}

// SetBacklog выставляет размер backlog и возраст старейшей записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldestAge.Seconds())
}

// PublishCounter возвращает счётчик попыток с заданным результатом.
func (m *OutboxMetrics) PublishCounter(result string) prometheus.Counter {
	return m.publishAttempts.WithLabelValues(result)
}
