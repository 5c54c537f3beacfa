package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics covers the relay from outbox_events to Pub/Sub.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	publish *prometheus.HistogramVec
	lag     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanpay_outbox_events_total",
			Help: "Outbox rows handled by the relay, by event type and result (published, retry, dead_letter).",
		}, []string{"event_type", "result"}),
		publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanpay_outbox_publish_seconds",
			Help:    "Time to get a Pub/Sub ack per topic.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"topic"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanpay_outbox_delivery_lag_seconds",
			Help:    "Time from an event being queued to it being published.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
	}
	reg.MustRegister(m.events, m.publish, m.lag)
	return m
}

func (m *OutboxMetrics) IncEvent(eventType, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, took time.Duration) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(topic)).Observe(took.Seconds())
}

func (m *OutboxMetrics) ObserveLag(lag time.Duration) {
	if m == nil || m.lag == nil || lag < 0 {
		return
	}
	m.lag.Observe(lag.Seconds())
}
