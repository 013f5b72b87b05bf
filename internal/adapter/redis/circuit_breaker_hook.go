package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	breakerDelay = 30 * time.Second
	snapshotTTL  = 5 * time.Minute
)

// CircuitBreakerHook implements redis.Hook to stop hammering Redis once it is
// failing. While the circuit is open, writes fail fast with circuitbreaker.ErrOpen
// and hash reads are answered from the last successful snapshot of that hash.
type CircuitBreakerHook struct {
	cb        circuitbreaker.CircuitBreaker[any]
	clock     clockwork.Clock
	snapshots *snapshotStore
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

type snapshotStore struct {
	mu     sync.RWMutex
	hashes map[string]snapshot
}

type snapshot struct {
	fields map[string]string
	taken  time.Time
}

// NewCircuitBreakerHook opens the circuit at a 60% failure rate over at least 5
// commands in a 10s window, probes again after 30s and closes after 1 success.
func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	return newCircuitBreakerHook(m, clockwork.NewRealClock(), breakerDelay)
}

func newCircuitBreakerHook(m *metrics.RedisMetrics, clock clockwork.Clock, delay time.Duration) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.CircuitState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:        cb,
		clock:     clock,
		snapshots: &snapshotStore{hashes: make(map[string]snapshot)},
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.fallback(cmd)
		}

		err := next(ctx, cmd)
		switch {
		case err == nil:
			h.cb.RecordSuccess()
			h.remember(cmd)
			return nil
		case errors.Is(err, goredis.Nil):
			h.cb.RecordSuccess()
			return err
		default:
			h.cb.RecordError(err)
			return fmt.Errorf("redis %s: %w", cmd.Name(), err)
		}
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("redis pipeline: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

func (h *CircuitBreakerHook) fallback(cmd goredis.Cmder) error {
	if c, ok := cmd.(*goredis.MapStringStringCmd); ok && cmd.Name() == "hgetall" {
		if fields, ok := h.lookup(hashKey(cmd)); ok {
			slog.Debug("Circuit breaker open, serving hash from snapshot", "key", hashKey(cmd))
			c.SetVal(fields)
			return nil
		}
	}

	slog.Warn("Circuit breaker open, rejecting command", "command", cmd.Name())
	return fmt.Errorf("redis %s: %w", cmd.Name(), circuitbreaker.ErrOpen)
}

func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	c, ok := cmd.(*goredis.MapStringStringCmd)
	if !ok || cmd.Name() != "hgetall" {
		return
	}

	h.snapshots.mu.Lock()
	h.snapshots.hashes[hashKey(cmd)] = snapshot{fields: maps.Clone(c.Val()), taken: h.clock.Now()}
	h.snapshots.mu.Unlock()
}

func (h *CircuitBreakerHook) lookup(key string) (map[string]string, bool) {
	h.snapshots.mu.RLock()
	defer h.snapshots.mu.RUnlock()

	s, ok := h.snapshots.hashes[key]
	if !ok || h.clock.Since(s.taken) > snapshotTTL {
		return nil, false
	}
	return maps.Clone(s.fields), true
}

func hashKey(cmd goredis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	return fmt.Sprint(args[1])
}

// State returns the current state of the circuit breaker.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
