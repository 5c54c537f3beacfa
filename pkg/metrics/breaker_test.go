package metrics

import (
	"testing"

	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestBreakerMetricsTracksStateAndRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBreakerMetrics(reg)

	m.OnStateChange("sms-classifier", breaker.StatusClosed, breaker.StatusOpen)
	m.OnRejected("sms-classifier")
	m.OnRejected("sms-classifier")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	state := findMetricFamily(mfs, "circuit_breaker_state")
	require.NotNil(t, state)
	require.Equal(t, float64(2), state.GetMetric()[0].GetGauge().GetValue())

	rejected, err := fetchCounterValue(mfs, "circuit_breaker_rejected_total", "breaker", "sms-classifier")
	require.NoError(t, err)
	require.Equal(t, float64(2), rejected)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BreakerMetrics
	m.OnStateChange("x", breaker.StatusClosed, breaker.StatusOpen)
	m.OnRejected("x")

	var p *PipelineMetrics
	p.IncOutcome("auto_settle")
	p.IncIngested(true)

	NewPipelineMetrics(nil).IncOutcome("manual_review")
}

func TestPipelineMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.IncOutcome("auto_settle")
	m.IncOutcome("auto_settle")
	m.IncIngested(false)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "sms_pipeline_outcomes_total", "outcome", "auto_settle")
	require.NoError(t, err)
	require.Equal(t, float64(2), got)
}
