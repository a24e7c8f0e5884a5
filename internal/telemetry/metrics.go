package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	gatewayCalls  *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	searchTerms   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priorart_gateway_calls_total",
			Help: "Calls made through the model and search gateways, by outcome.",
		}, []string{"gateway", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priorart_jobs_total",
			Help: "Background jobs finished, by kind and terminal status.",
		}, []string{"kind", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "priorart_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		searchTerms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priorart_search_terms_total",
			Help: "Unique search terms submitted to the retrieval engine.",
		}),
	}
	reg.MustRegister(m.gatewayCalls, m.jobs, m.stageDuration, m.searchTerms)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) GatewayCall(gateway, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) JobFinished(kind, status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SearchTerms(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.searchTerms.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
