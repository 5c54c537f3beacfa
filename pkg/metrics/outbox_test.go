package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncEvent("sms_received", "published")
	m.IncEvent("sms_received", "published")
	m.IncEvent("payment_confirmed", "dead_letter")
	m.IncEvent("", "retry")
	m.ObservePublish("payments", 40*time.Millisecond)
	m.ObservePublish("payments", 60*time.Millisecond)
	m.ObserveLag(2 * time.Second)
	m.ObserveLag(-time.Second)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	published, err := fetchCounterValue(mfs, "fanpay_outbox_events_total", "result", "published")
	require.NoError(t, err)
	require.Equal(t, float64(2), published)
	unknown, err := fetchCounterValue(mfs, "fanpay_outbox_events_total", "event_type", "unknown")
	require.NoError(t, err)
	require.Equal(t, float64(1), unknown)

	sum, err := fetchHistogramSum(mfs, "fanpay_outbox_publish_seconds", "topic", "payments")
	require.NoError(t, err)
	require.InDelta(t, 0.1, sum, 0.001)

	lag := findMetricFamily(mfs, "fanpay_outbox_delivery_lag_seconds")
	require.NotNil(t, lag)
	require.Equal(t, uint64(1), lag.GetMetric()[0].GetHistogram().GetSampleCount(), "negative lag is dropped")
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.IncEvent("x", "published")
	m.ObservePublish("t", time.Second)
	m.ObserveLag(time.Second)
	NewOutboxMetrics(nil).IncEvent("x", "retry")
}
