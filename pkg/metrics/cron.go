package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics tracks the maintenance tasks run by the cron worker:
// stale SMS redispatch and outbox retention.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  prometheus.Counter
}

var taskBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	m := &SchedulerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanpay_cron_task_runs_total",
			Help: "Scheduled task executions by result.",
		}, []string{"task", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanpay_cron_task_records_total",
			Help: "Rows touched by scheduled tasks, such as SMS redispatched or outbox rows deleted.",
		}, []string{"task"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanpay_cron_task_duration_seconds",
			Help:    "Wall time of one scheduled task execution.",
			Buckets: taskBuckets,
		}, []string{"task"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fanpay_cron_ticks_skipped_total",
			Help: "Ticks skipped because another instance held the scheduler lock.",
		}),
	}
	reg.MustRegister(m.runs, m.records, m.duration, m.skipped)
	return m
}

// ObserveRun records one task execution. records is ignored on failure.
func (m *SchedulerMetrics) ObserveRun(task string, took time.Duration, records int, err error) {
	if m == nil || m.runs == nil {
		return
	}
	task = normalizeLabel(task)
	m.duration.WithLabelValues(task).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(task, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(task, "success").Inc()
	if records > 0 {
		m.records.WithLabelValues(task).Add(float64(records))
	}
}

func (m *SchedulerMetrics) IncSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
