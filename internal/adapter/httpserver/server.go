package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/agentpulse/internal/broadcast"
	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/pscheid92/agentpulse/internal/metrics"
	"github.com/pscheid92/agentpulse/internal/platform/config"
)

type agentService interface {
	List(ctx context.Context) ([]domain.Agent, error)
	Create(ctx context.Context, id string) (domain.Agent, error)
	UpdateState(ctx context.Context, id, state string) (domain.Agent, error)
}

type instanceLister interface {
	Instances(ctx context.Context) ([]domain.Instance, error)
}

type streamHub interface {
	Serve(ctx context.Context, sink broadcast.Sink) error
	ActiveConnections() int
}

// Metrics bundles the collectors the server reports to and the registry it
// serves at /metrics.
type Metrics struct {
	Registry *prometheus.Registry
	HTTP     *metrics.HTTPMetrics
	Stream   *metrics.StreamMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	agents    agentService
	hub       streamHub
	instances instanceLister
	limits    *ConnectionLimits

	metrics      Metrics
	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

// NewServer builds the HTTP surface. instances may be nil, in which case
// /instances is not served.
func NewServer(cfg *config.Config, agents agentService, hub streamHub, instances instanceLister, m Metrics, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		agents:       agents,
		hub:          hub,
		instances:    instances,
		limits:       NewConnectionLimits(int64(cfg.MaxStreamConnections), cfg.MaxStreamConnectionsPerIP, cfg.StreamConnectRate, cfg.StreamConnectBurst, clock),
		metrics:      m,
		healthChecks: healthChecks,
		clock:        clock,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open event
// streams only end once the hub has been stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func staticDirExists(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
