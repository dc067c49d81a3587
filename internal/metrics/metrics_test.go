package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"legal-assistant-be/pkg/legal/graph"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	cfg := graph.RunConfig{SessionID: "s"}

	m.StageFinished(cfg, "legal_elements", "legal_elements", 20*time.Millisecond, errors.New("timeout"))
	m.StageFinished(cfg, "risk_analysis", "risk_analysis", 10*time.Millisecond, nil)
	m.Routed(cfg, "complexity_routing", "path", "complex")
	m.Routed(cfg, "complexity_routing", "path", "complex")
	m.RunFinished(cfg, "conversational", "analysis_offer", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("legal_elements")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("risk_analysis")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Routes.WithLabelValues("path", "complex")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("conversational", "analysis_offer", "true")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Routed(graph.RunConfig{}, "safety_gate", "safety", "continue")

	app := fiber.New()
	app.Get("/metrics", Handler(reg))
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `legal_route_decisions_total{label="continue",router="safety"} 1`)
}
