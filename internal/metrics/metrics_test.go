package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_AllGroupsRegisterWithoutConflict(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewStreamMetrics(reg)
		NewRedisMetrics(reg)
		NewAgentMetrics(reg)
	})
}

func TestNewStreamMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStreamMetrics(reg)

	assert.Panics(t, func() { NewStreamMetrics(reg) })
}

func TestStreamMetrics_Counters(t *testing.T) {
	m := NewStreamMetrics(prometheus.NewRegistry())

	m.FramesWritten.WithLabelValues("event").Inc()
	m.FramesWritten.WithLabelValues("event").Inc()
	m.FramesWritten.WithLabelValues("heartbeat").Inc()
	m.ConnectionsClosed.WithLabelValues("cancelled").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesWritten.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesWritten.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsClosed.WithLabelValues("cancelled")))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAgentMetrics(reg)
	m.EventsPublished.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `agentpulse_agents_events_published_total{result="success"} 1`))
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/agents", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/agents", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/agents", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal), "health probes are not recorded")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}
