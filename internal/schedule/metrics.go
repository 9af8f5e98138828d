package schedule

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// MetricsConfig configures pushing metrics to a Prometheus Pushgateway.
// Without a push url metrics are only collected in memory.
type MetricsConfig struct {
	PushURL string `yaml:"push_url" env:"FORMWALK_PUSHGATEWAY_URL"`
	Job     string `yaml:"job" env-default:"formwalk"`
}

// Metrics collects cycle, stage and session metrics. A nil *Metrics is
// valid and does nothing.
type Metrics struct {
	registry *prometheus.Registry
	cycles   *prometheus.CounterVec
	stages   *prometheus.HistogramVec
	restarts prometheus.Counter
	pusher   *push.Pusher
}

func NewMetrics(c *MetricsConfig) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwalk_cycles_total",
				Help: "Total number of form walk cycles by outcome",
			},
			[]string{"outcome"},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formwalk_stage_duration_seconds",
				Help:    "Duration of the form walk stages",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"stage", "outcome"},
		),
		restarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "formwalk_session_restarts_total",
				Help: "Total number of browser sessions opened after the first one",
			},
		),
	}
	m.registry.MustRegister(m.cycles, m.stages, m.restarts)
	if c != nil && c.PushURL != "" {
		job := c.Job
		if job == "" {
			job = "formwalk"
		}
		m.pusher = push.New(c.PushURL, job).Gatherer(m.registry)
	}
	return m
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *Metrics) ObserveCycle(success bool) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome(success)).Inc()
}

// ObserveStage records the duration of one form stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage, outcome(err == nil)).Observe(d.Seconds())
}

func (m *Metrics) ObserveRestart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

// Push sends the current values to the Pushgateway if one is configured.
func (m *Metrics) Push(ctx context.Context) error {
	if m == nil || m.pusher == nil {
		return nil
	}
	return m.pusher.PushContext(ctx)
}
