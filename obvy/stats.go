package neurales

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal holds the prometheus registry and every collector neurales exports.
// Each View gets its own registry so tests never collide on global registration.
type StatsInternal struct {
	Registry       *prometheus.Registry
	WWW            *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	ChunksEmitted  prometheus.Counter
	PayloadErrors  prometheus.Counter
	Fatigue        prometheus.Histogram
}

// NewStatsInternal creates the registry and registers all collectors
func NewStatsInternal() *StatsInternal {
	reg := prometheus.NewRegistry()

	s := &StatsInternal{
		Registry: reg,
		WWW: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neurales_http_requests_total",
			Help: "HTTP API requests by status code and method",
		}, []string{"code", "method"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neurales_sessions_active",
			Help: "Streaming sessions currently connected",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neurales_sessions_total",
			Help: "Streaming sessions by final state",
		}, []string{"state"}),
		ChunksEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neurales_chunks_emitted_total",
			Help: "Scored chunks delivered to clients",
		}),
		PayloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neurales_payload_errors_total",
			Help: "Chunks that produced an error payload instead of a score",
		}),
		Fatigue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neurales_fatigue_score",
			Help:    "Distribution of emitted fatigue scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}

	reg.MustRegister(
		s.WWW,
		s.SessionsActive,
		s.SessionsTotal,
		s.ChunksEmitted,
		s.PayloadErrors,
		s.Fatigue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return s
}

// Handler serves the registry on /metrics
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

func (s *StatsInternal) RecWWW(code, method string) {
	s.WWW.WithLabelValues(code, method).Inc()
}

func (s *StatsInternal) SessionOpened() {
	s.SessionsActive.Inc()
}

func (s *StatsInternal) SessionClosed(state string) {
	s.SessionsActive.Dec()
	s.SessionsTotal.WithLabelValues(state).Inc()
}

// ChunkEmitted and PayloadError let a scheduler report each tick
func (s *StatsInternal) ChunkEmitted(fatigue int) {
	s.ChunksEmitted.Inc()
	s.Fatigue.Observe(float64(fatigue))
}

func (s *StatsInternal) PayloadError() {
	s.PayloadErrors.Inc()
}
