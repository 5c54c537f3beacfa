package metrics

import (
	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/prometheus/client_golang/prometheus"
)

// BreakerMetrics exports circuit breaker state and is a breaker.Observer.
type BreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// NewBreakerMetrics registers the breaker metrics on the provided registerer.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	if reg == nil {
		return &BreakerMetrics{}
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state (0=closed, 1=half_open, 2=open).",
	}, []string{"breaker"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_transitions_total",
		Help: "Breaker state transitions.",
	}, []string{"breaker", "from", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_rejected_total",
		Help: "Calls rejected without invoking the dependency.",
	}, []string{"breaker"})
	reg.MustRegister(state, transitions, rejected)
	return &BreakerMetrics{state: state, transitions: transitions, rejected: rejected}
}

func (m *BreakerMetrics) OnStateChange(name string, from, to breaker.Status) {
	if m == nil || m.state == nil {
		return
	}
	name = normalizeLabel(name)
	m.state.WithLabelValues(name).Set(stateValue(to))
	m.transitions.WithLabelValues(name, string(from), string(to)).Inc()
}

func (m *BreakerMetrics) OnRejected(name string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(name)).Inc()
}

func stateValue(s breaker.Status) float64 {
	switch s {
	case breaker.StatusHalfOpen:
		return 1
	case breaker.StatusOpen:
		return 2
	default:
		return 0
	}
}
