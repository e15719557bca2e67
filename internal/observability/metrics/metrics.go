package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for message processing.
type ConversationMetrics struct {
	messagesTotal   *prometheus.CounterVec
	intentsTotal    *prometheus.CounterVec
	nluFallbacks    prometheus.Counter
	ordersCreated   prometheus.Counter
	processingTime  *prometheus.HistogramVec
	deferredPersist prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Total inbound messages by route and starting state",
		}, []string{"route", "state"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "intents_total",
			Help:      "Resolved intents by kind and stage that fired",
		}, []string{"kind", "stage"}),
		nluFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "nlu_fallbacks_total",
			Help:      "Delegated messages that fell back to the deterministic path",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "orders_created_total",
			Help:      "Orders finalized through the state machine",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "processing_seconds",
			Help:      "Latency of inbound message processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		deferredPersist: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "conversation",
			Name:      "deferred_persist_total",
			Help:      "Session writes deferred to the write-back queue",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.intentsTotal, m.nluFallbacks,
		m.ordersCreated, m.processingTime, m.deferredPersist)
	return m
}

func (m *ConversationMetrics) ObserveMessage(route, state string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(route, state).Inc()
}

func (m *ConversationMetrics) ObserveIntent(kind, stage string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(kind, stage).Inc()
}

func (m *ConversationMetrics) ObserveNLUFallback() {
	if m == nil {
		return
	}
	m.nluFallbacks.Inc()
}

func (m *ConversationMetrics) ObserveOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *ConversationMetrics) ObserveProcessing(route string, seconds float64) {
	if m == nil {
		return
	}
	m.processingTime.WithLabelValues(route).Observe(seconds)
}

func (m *ConversationMetrics) ObserveDeferredPersist() {
	if m == nil {
		return
	}
	m.deferredPersist.Inc()
}

// CacheMetrics tracks tiered cache behavior.
type CacheMetrics struct {
	hits           *prometheus.CounterVec
	misses         prometheus.Counter
	fastTierErrors prometheus.Counter
	writebackDepth prometheus.Gauge
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Reads that missed every tier",
		}),
		fastTierErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Subsystem: "cache",
			Name:      "fast_tier_errors_total",
			Help:      "Fast-tier operations that failed and were degraded",
		}),
		writebackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pizzabot",
			Subsystem: "cache",
			Name:      "writeback_queue_depth",
			Help:      "Pending durable write-back obligations",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.hits, m.misses, m.fastTierErrors, m.writebackDepth)
	return m
}

func (m *CacheMetrics) ObserveHit(tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(tier).Inc()
}

func (m *CacheMetrics) ObserveMiss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *CacheMetrics) ObserveFastTierError() {
	if m == nil {
		return
	}
	m.fastTierErrors.Inc()
}

func (m *CacheMetrics) SetWritebackDepth(n int) {
	if m == nil {
		return
	}
	m.writebackDepth.Set(float64(n))
}
