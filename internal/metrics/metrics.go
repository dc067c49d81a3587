// Package metrics exports executor activity to Prometheus.
package metrics

import (
	"time"

	"legal-assistant-be/pkg/legal/graph"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics is a graph.Observer. Every method only touches collectors, so it
// never blocks a run.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	Fallbacks     *prometheus.CounterVec
	Routes        *prometheus.CounterVec
	Turns         *prometheus.CounterVec
}

var _ graph.Observer = (*Metrics)(nil)

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "legal_stage_duration_seconds",
			Help:    "Time spent in each stage, including its fallback.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legal_stage_fallbacks_total",
			Help: "Stages that degraded to their fallback output.",
		}, []string{"stage"}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legal_route_decisions_total",
			Help: "Router decisions by router and label.",
		}, []string{"router", "label"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legal_turns_total",
			Help: "Completed runs by graph, terminal node and whether the run suspended.",
		}, []string{"graph", "terminal", "suspended"}),
	}
	reg.MustRegister(m.StageDuration, m.Fallbacks, m.Routes, m.Turns)
	return m
}

func (m *Metrics) StageStarted(graph.RunConfig, graph.NodeID, string) {}

func (m *Metrics) StageFinished(_ graph.RunConfig, _ graph.NodeID, stage string, took time.Duration, cause error) {
	m.StageDuration.WithLabelValues(stage).Observe(took.Seconds())
	if cause != nil {
		m.Fallbacks.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) Routed(_ graph.RunConfig, _ graph.NodeID, router, label string) {
	m.Routes.WithLabelValues(router, label).Inc()
}

func (m *Metrics) RunFinished(_ graph.RunConfig, g string, terminal graph.NodeID, suspended bool) {
	s := "false"
	if suspended {
		s = "true"
	}
	m.Turns.WithLabelValues(g, string(terminal), s).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
