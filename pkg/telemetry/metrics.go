package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the console's collectors on a private registry so tests can
// build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Dispatches       *prometheus.CounterVec   // outcome: ok|error
	DispatchDuration *prometheus.HistogramVec // service
	Fetches          *prometheus.CounterVec   // outcome: ok|error
	CacheLookups     *prometheus.CounterVec   // result: hit|miss
	Reconnects       *prometheus.CounterVec   // service
	Probes           *prometheus.CounterVec   // prerequisite, status
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "m365prov", Name: "dispatches_total", Help: "Dispatched actions by outcome.",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "m365prov", Name: "dispatch_duration_seconds", Help: "Wall time of dispatched actions, prompts included.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"service"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "m365prov", Name: "artifact_fetches_total", Help: "Remote artifact fetches by outcome.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "m365prov", Name: "artifact_cache_lookups_total", Help: "Artifact cache lookups by result.",
		}, []string{"result"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "m365prov", Name: "reconnects_total", Help: "Scope-driven reconnects by service.",
		}, []string{"service"}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "m365prov", Name: "probes_total", Help: "Prerequisite probe results.",
		}, []string{"prerequisite", "status"}),
	}
	reg.MustRegister(m.Dispatches, m.DispatchDuration, m.Fetches, m.CacheLookups, m.Reconnects, m.Probes)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func Outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
