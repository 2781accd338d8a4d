package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Метки хранилищ для метрик.
const (
	StoreCart           = "cart"
	StoreCompare        = "compare"
	StoreRecentlyViewed = "recently_viewed"
)

// SessionMetrics содержит метрики клиентских хранилищ сессии.
type SessionMetrics struct {
	// Счётчики операций
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec

	// Проглоченные сбои локального хранилища
	persistFailures *prometheus.CounterVec
	corruptData     *prometheus.CounterVec

	// Исходящая синхронизация корзины
	mirrorEnqueued     prometheus.Counter
	mirrorEnqueueFails prometheus.Counter
	guestMerges        prometheus.Counter

	// Gauge для активных сессий устройств
	activeSessions prometheus.Gauge
}

// NewSessionMetrics создаёт метрики в DefaultRegisterer.
func NewSessionMetrics() *SessionMetrics {
	return NewSessionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSessionMetricsWithRegisterer создаёт метрики в заданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewSessionMetricsWithRegisterer(registerer prometheus.Registerer) *SessionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SessionMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_store_operations_total",
			Help: "Total number of session store operations grouped by store and operation",
		}, []string{"store", "op"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_compare_rejections_total",
			Help: "Total number of compare additions rejected by policy",
		}, []string{"reason"}),
		persistFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_persist_failures_total",
			Help: "Total number of swallowed local persistence failures",
		}, []string{"store", "op"}),
		corruptData: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_corrupt_data_total",
			Help: "Total number of persisted collections discarded as malformed",
		}, []string{"store"}),
		mirrorEnqueued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mirror_enqueued_total",
			Help: "Total number of cart mirror events put into the outbound queue",
		}),
		mirrorEnqueueFails: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mirror_enqueue_failures_total",
			Help: "Total number of cart mirror events that could not be queued",
		}),
		guestMerges: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_guest_merges_total",
			Help: "Total number of guest carts merged into an authenticated cart",
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_sessions",
			Help: "Number of device sessions held in memory",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// Методы nil-безопасны: хранилища могут работать без метрик.

// RecordOperation увеличивает счётчик операций хранилища.
func (m *SessionMetrics) RecordOperation(store, op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(store, op).Inc()
}

// RecordRejection увеличивает счётчик отказов политики сравнения.
func (m *SessionMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// RecordPersistFailure учитывает проглоченный сбой записи/удаления.
func (m *SessionMetrics) RecordPersistFailure(store, op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(store, op).Inc()
}

// RecordCorruptData учитывает отброшенные битые данные.
func (m *SessionMetrics) RecordCorruptData(store string) {
	if m == nil {
		return
	}
	m.corruptData.WithLabelValues(store).Inc()
}

// RecordMirrorEnqueued учитывает поставленное в очередь событие синхронизации.
func (m *SessionMetrics) RecordMirrorEnqueued() {
	if m == nil {
		return
	}
	m.mirrorEnqueued.Inc()
}

// RecordMirrorEnqueueFailed учитывает событие, которое не удалось поставить в очередь.
func (m *SessionMetrics) RecordMirrorEnqueueFailed() {
	if m == nil {
		return
	}
	m.mirrorEnqueueFails.Inc()
}

// RecordGuestMerge учитывает слияние гостевой корзины.
func (m *SessionMetrics) RecordGuestMerge() {
	if m == nil {
		return
	}
	m.guestMerges.Inc()
}

// SetActiveSessions выставляет число сессий в памяти.
func (m *SessionMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
