// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adforge/internal/domain"
)

// Pipeline records job and asset outcomes.
type Pipeline struct {
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	assets        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	registry      *prometheus.Registry
}

// NewPipeline registers the pipeline collectors on a fresh registry that
// also carries the Go and process collectors.
func NewPipeline() *Pipeline {
	m := &Pipeline{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adforge_pipeline_jobs_started_total",
			Help: "Pipeline jobs created",
		}),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adforge_pipeline_jobs_finished_total",
				Help: "Pipeline jobs that left the pipeline, by status",
			},
			[]string{"status"},
		),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adforge_pipeline_jobs_active",
			Help: "Pipeline jobs created but not yet finished",
		}),
		assets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adforge_pipeline_assets_total",
				Help: "Angle/size pairs attempted, by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adforge_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.jobsStarted,
		m.jobsFinished,
		m.jobsActive,
		m.assets,
		m.stageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Pipeline) JobStarted() {
	m.jobsStarted.Inc()
	m.jobsActive.Inc()
}

func (m *Pipeline) JobFinished(status domain.JobStatus) {
	m.jobsFinished.WithLabelValues(string(status)).Inc()
	m.jobsActive.Dec()
}

func (m *Pipeline) AssetOutcome(outcome string) {
	m.assets.WithLabelValues(outcome).Inc()
}

func (m *Pipeline) StageCompleted(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Pipeline) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
