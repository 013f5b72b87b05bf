// Package config provides environment-based configuration.
//
// Loads an optional .env file (godotenv), maps the environment onto Config via
// go-simpler/env struct tags and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	RedisURL  string `env:"REDIS_URL" default:"redis://localhost:6379"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	EventsChannel string `env:"EVENTS_CHANNEL" default:"sse:messages"`
	AgentsKey     string `env:"AGENTS_KEY" default:"agents"`

	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" default:"25s"`
	StreamWriteTimeout   time.Duration `env:"STREAM_WRITE_TIMEOUT" default:"5s"`
	StreamBufferSize     int           `env:"STREAM_BUFFER_SIZE" default:"16"`
	StreamOverflowPolicy string        `env:"STREAM_OVERFLOW_POLICY" default:"disconnect"`

	MaxStreamConnections      int     `env:"MAX_STREAM_CONNECTIONS" default:"10000"`
	MaxStreamConnectionsPerIP int     `env:"MAX_STREAM_CONNECTIONS_PER_IP" default:"100"`
	StreamConnectRate         float64 `env:"STREAM_CONNECT_RATE" default:"10"`
	StreamConnectBurst        int     `env:"STREAM_CONNECT_BURST" default:"20"`
	APIRateLimit              float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst              int     `env:"API_RATE_BURST" default:"40"`

	InstanceID                string        `env:"INSTANCE_ID"`
	InstancesKey              string        `env:"INSTANCES_KEY" default:"agentpulse:instances"`
	InstanceHeartbeatInterval time.Duration `env:"INSTANCE_HEARTBEAT_INTERVAL" default:"15s"`

	StaticDir       string        `env:"STATIC_DIR" default:"wwwroot"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"PORT":           cfg.Port,
		"REDIS_URL":      cfg.RedisURL,
		"EVENTS_CHANNEL": cfg.EventsChannel,
		"AGENTS_KEY":     cfg.AgentsKey,
		"INSTANCES_KEY":  cfg.InstancesKey,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	u, err := url.Parse(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix" {
		return fmt.Errorf("REDIS_URL scheme must be redis, rediss or unix, got %q", u.Scheme)
	}

	positive := map[string]time.Duration{
		"HEARTBEAT_INTERVAL":          cfg.HeartbeatInterval,
		"STREAM_WRITE_TIMEOUT":        cfg.StreamWriteTimeout,
		"SHUTDOWN_TIMEOUT":            cfg.ShutdownTimeout,
		"INSTANCE_HEARTBEAT_INTERVAL": cfg.InstanceHeartbeatInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if cfg.StreamBufferSize < 1 {
		return errors.New("STREAM_BUFFER_SIZE must be at least 1")
	}
	switch strings.ToLower(cfg.StreamOverflowPolicy) {
	case "disconnect", "drop-oldest":
	default:
		return fmt.Errorf("STREAM_OVERFLOW_POLICY must be disconnect or drop-oldest, got %q", cfg.StreamOverflowPolicy)
	}

	if cfg.MaxStreamConnections < 1 || cfg.MaxStreamConnectionsPerIP < 1 {
		return errors.New("MAX_STREAM_CONNECTIONS and MAX_STREAM_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.StreamConnectRate <= 0 || cfg.StreamConnectBurst < 1 {
		return errors.New("STREAM_CONNECT_RATE must be positive and STREAM_CONNECT_BURST at least 1")
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst < 1 {
		return errors.New("API_RATE_LIMIT must be positive and API_RATE_BURST at least 1")
	}

	return nil
}

// defaultInstanceID is the hostname, which is unique per pod or container.
func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "agentpulse-" + strconv.Itoa(os.Getpid())
}
