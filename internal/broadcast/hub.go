package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/pscheid92/agentpulse/internal/metrics"
)

const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 16
)

var (
	// ErrSubscribe marks a stream that failed before anything was written.
	ErrSubscribe = errors.New("subscribe to topic")
	// ErrQueueOverflow marks a stream closed by the disconnect overflow policy.
	ErrQueueOverflow = errors.New("connection queue overflow")
	// ErrHubStopped is returned by Serve after Stop, and is the cancellation cause
	// of every connection open when Stop was called.
	ErrHubStopped = errors.New("hub stopped")
)

// Config holds the per-connection streaming parameters shared by all connections.
type Config struct {
	Topic             string
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	BufferSize        int
	OverflowPolicy    OverflowPolicy
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = OverflowDisconnect
	}
	return c
}

// Hub binds open streams to the shared topic. It owns no goroutines of its own:
// each stream runs on the goroutine that called Serve.
type Hub struct {
	subscriber domain.EventSubscriber
	cfg        Config
	clock      clockwork.Clock
	metrics    *metrics.StreamMetrics

	mu          sync.Mutex
	connections map[uuid.UUID]*Connection
	stopped     bool
	active      sync.WaitGroup
}

// NewHub creates a hub streaming cfg.Topic from subscriber.
func NewHub(subscriber domain.EventSubscriber, cfg Config, clock clockwork.Clock, m *metrics.StreamMetrics) *Hub {
	return &Hub{
		subscriber:  subscriber,
		cfg:         cfg.withDefaults(),
		clock:       clock,
		metrics:     m,
		connections: make(map[uuid.UUID]*Connection),
	}
}

// Serve streams the topic to sink until ctx is cancelled, a write fails, or the
// hub stops. It returns an error wrapping ErrSubscribe if the subscription could
// not be established; nothing has been written to sink in that case. Cancellation
// and shutdown return nil; write failures and overflow return the cause, which
// has already been logged.
func (h *Hub) Serve(ctx context.Context, sink Sink) error {
	conn, ctx, err := h.register(ctx, sink)
	if err != nil {
		return err
	}
	defer h.unregister(conn)

	sub, err := h.subscriber.Subscribe(ctx, h.cfg.Topic)
	if err != nil {
		conn.setState(StateClosing)
		conn.setState(StateClosed)
		conn.closed(ctx, closeReasonSetupFailed, err)
		return fmt.Errorf("%w %q: %w", ErrSubscribe, h.cfg.Topic, err)
	}

	return conn.run(ctx, sub)
}

// ActiveConnections returns the number of open streams.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Stop cancels every open stream and refuses new ones. It blocks until all
// streams have released their subscriptions or ctx expires.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	open := len(h.connections)
	for _, conn := range h.connections {
		conn.cancel(ErrHubStopped)
	}
	h.mu.Unlock()

	slog.Info("Hub shutting down", "open_streams", open)

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Hub shutdown complete", "closed_streams", open)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d streams to close: %w", h.ActiveConnections(), ctx.Err())
	}
}

func (h *Hub) register(ctx context.Context, sink Sink) (*Connection, context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, nil, ErrHubStopped
	}

	connCtx, cancel := context.WithCancelCause(ctx)
	conn := newConnection(sink, h.cfg, h.clock, h.metrics, cancel)
	h.connections[conn.id] = conn
	h.active.Add(1)
	h.metrics.ActiveConnections.Inc()
	return conn, connCtx, nil
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	delete(h.connections, conn.id)
	h.mu.Unlock()

	conn.cancel(nil)
	h.metrics.ActiveConnections.Dec()
	h.active.Done()
}
