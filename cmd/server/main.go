package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/adapter/httpserver"
	redisadapter "github.com/pscheid92/agentpulse/internal/adapter/redis"
	"github.com/pscheid92/agentpulse/internal/app"
	"github.com/pscheid92/agentpulse/internal/broadcast"
	"github.com/pscheid92/agentpulse/internal/metrics"
	"github.com/pscheid92/agentpulse/internal/platform/config"
	"github.com/pscheid92/agentpulse/internal/platform/logging"
	"github.com/pscheid92/agentpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, hub *broadcast.Hub, stopRegistry context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")
		stopRegistry()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Streams never finish on their own, so they have to end before the
		// server can drain.
		if err := hub.Stop(shutdownCtx); err != nil {
			slog.Error("Hub shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	client, err := redisadapter.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupHub(cfg *config.Config, rdb *goredis.Client, clock clockwork.Clock, m *metrics.StreamMetrics) *broadcast.Hub {
	policy, err := broadcast.ParseOverflowPolicy(cfg.StreamOverflowPolicy)
	if err != nil {
		slog.Error("Invalid overflow policy", "error", err)
		os.Exit(1)
	}

	return broadcast.NewHub(redisadapter.NewSubscriber(rdb), broadcast.Config{
		Topic:             cfg.EventsChannel,
		HeartbeatInterval: cfg.HeartbeatInterval,
		WriteTimeout:      cfg.StreamWriteTimeout,
		BufferSize:        cfg.StreamBufferSize,
		OverflowPolicy:    policy,
	}, clock, m)
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	streamMetrics := metrics.NewStreamMetrics(reg)

	redisClient := setupRedis(context.Background(), cfg, metrics.NewRedisMetrics(reg))
	defer func() { _ = redisClient.Close() }()

	hub := setupHub(cfg, redisClient, clock, streamMetrics)

	agents := app.NewAgentService(
		redisadapter.NewAgentStore(redisClient, cfg.AgentsKey),
		redisadapter.NewPublisher(redisClient),
		cfg.EventsChannel,
		metrics.NewAgentMetrics(reg),
	)

	registry := redisadapter.NewInstanceRegistry(redisClient, cfg.InstancesKey, cfg.InstanceID, version.Version,
		cfg.InstanceHeartbeatInterval, clock, hub.ActiveConnections)
	registryCtx, stopRegistry := context.WithCancel(context.Background())
	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		registry.Run(registryCtx)
	}()

	healthChecks := []httpserver.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	srv := httpserver.NewServer(cfg, agents, hub, registry, httpserver.Metrics{
		Registry: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
		Stream:   streamMetrics,
	}, healthChecks, clock)

	done := runGracefulShutdown(cfg, srv, hub, stopRegistry)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	<-registryDone
}
