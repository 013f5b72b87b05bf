package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/metrics"
	"github.com/pscheid92/agentpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// ConnectPolicy controls how NewClient waits for Redis at startup.
var ConnectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

var errInvalidURL = errors.New("invalid redis URL")

// NewClient creates a Redis client from a URL (e.g., "redis://localhost:6379"),
// installs the metrics and circuit breaker hooks and pings until Redis answers
// or the connect policy gives up.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidURL, err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(m, clockwork.NewRealClock()))
	rdb.AddHook(NewCircuitBreakerHook(m))

	policy := ConnectPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not reachable, retrying", "addr", opts.Addr, "attempt", attempt, "backoff", backoff, "error", err)
	}

	err = retry.DoVoid(ctx, policy, retry.Always, func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}
