package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics counts SMS pipeline outcomes.
type PipelineMetrics struct {
	ingested  *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_ingested_total",
		Help: "Inbound SMS accepted by the gateway.",
	}, []string{"duplicate"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_pipeline_outcomes_total",
		Help: "Outcome of processing an inbound SMS.",
	}, []string{"outcome"})
	reg.MustRegister(ingested, decisions)
	return &PipelineMetrics{ingested: ingested, decisions: decisions}
}

func (m *PipelineMetrics) IncIngested(duplicate bool) {
	if m == nil || m.ingested == nil {
		return
	}
	label := "false"
	if duplicate {
		label = "true"
	}
	m.ingested.WithLabelValues(label).Inc()
}

// IncOutcome records a decision kind or a terminal status such as parse_failure.
func (m *PipelineMetrics) IncOutcome(outcome string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
