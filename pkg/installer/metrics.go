package installer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts step outcomes of install runs
type Metrics struct {
	steps    *prometheus.CounterVec
	attempts *prometheus.HistogramVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the installer metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hsauto",
			Name:      "steps_total",
			Help:      "Install steps by plan, step and status.",
		}, []string{"plan", "step", "status"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hsauto",
			Name:      "step_attempts",
			Help:      "Screen samples taken per install step.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"plan", "step"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hsauto",
			Name:      "step_duration_seconds",
			Help:      "Wall time per install step.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"plan", "step"}),
	}
	reg.MustRegister(m.steps, m.attempts, m.duration)
	return m
}

func (m *Metrics) observe(plan string, r StepResult) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(plan, r.Name, string(r.Status)).Inc()
	if r.Status == StepSkipped {
		return
	}
	m.attempts.WithLabelValues(plan, r.Name).Observe(float64(r.Attempts))
	m.duration.WithLabelValues(plan, r.Name).Observe(r.Duration.Seconds())
}

// WriteMetrics writes everything gathered by g to path in the text format
// read by the node exporter textfile collector
func WriteMetrics(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
