package httpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/agentpulse/internal/broadcast"
	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/pscheid92/agentpulse/internal/metrics"
	"github.com/pscheid92/agentpulse/internal/platform/config"
)

// --- Mock implementations ---

type mockAgentService struct {
	listFn        func(ctx context.Context) ([]domain.Agent, error)
	createFn      func(ctx context.Context, id string) (domain.Agent, error)
	updateStateFn func(ctx context.Context, id, state string) (domain.Agent, error)
}

func (m *mockAgentService) List(ctx context.Context) ([]domain.Agent, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []domain.Agent{}, nil
}

func (m *mockAgentService) Create(ctx context.Context, id string) (domain.Agent, error) {
	if m.createFn != nil {
		return m.createFn(ctx, id)
	}
	return domain.Agent{}, errors.New("not implemented")
}

func (m *mockAgentService) UpdateState(ctx context.Context, id, state string) (domain.Agent, error) {
	if m.updateStateFn != nil {
		return m.updateStateFn(ctx, id, state)
	}
	return domain.Agent{}, errors.New("not implemented")
}

type mockHub struct {
	serveFn func(ctx context.Context, sink broadcast.Sink) error
	active  int
}

func (m *mockHub) Serve(ctx context.Context, sink broadcast.Sink) error {
	if m.serveFn != nil {
		return m.serveFn(ctx, sink)
	}
	return nil
}

func (m *mockHub) ActiveConnections() int {
	return m.active
}

type mockInstances struct {
	instances []domain.Instance
	err       error
}

func (m *mockInstances) Instances(_ context.Context) ([]domain.Instance, error) {
	return m.instances, m.err
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:                      "0",
		EventsChannel:             "sse:messages",
		AgentsKey:                 "agents",
		MaxStreamConnections:      100,
		MaxStreamConnectionsPerIP: 10,
		StreamConnectRate:         100,
		StreamConnectBurst:        100,
		APIRateLimit:              100,
		APIRateBurst:              100,
	}
}

func newTestMetrics() Metrics {
	reg := metrics.NewRegistry()
	return Metrics{
		Registry: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
		Stream:   metrics.NewStreamMetrics(reg),
	}
}

type testServerOptions struct {
	cfg          *config.Config
	hub          streamHub
	instances    instanceLister
	healthChecks []HealthCheck
	clock        clockwork.Clock
}

func newTestServer(t *testing.T, agents agentService, opts ...func(*testServerOptions)) *Server {
	t.Helper()

	o := testServerOptions{
		cfg:   testConfig(),
		hub:   &mockHub{},
		clock: clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return NewServer(o.cfg, agents, o.hub, o.instances, newTestMetrics(), o.healthChecks, o.clock)
}

func withHub(hub streamHub) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.hub = hub
	}
}

func withConfig(mutate func(*config.Config)) func(*testServerOptions) {
	return func(o *testServerOptions) {
		mutate(o.cfg)
	}
}

func withHealthChecks(checks ...HealthCheck) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.healthChecks = checks
	}
}

func withInstances(instances instanceLister) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.instances = instances
	}
}

func withClock(clock clockwork.Clock) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.clock = clock
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
