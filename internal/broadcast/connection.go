package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/pscheid92/agentpulse/internal/metrics"
	"github.com/pscheid92/agentpulse/internal/sse"
	"golang.org/x/sync/errgroup"
)

var (
	connectedFrame = sse.Comment("connected")
	heartbeatFrame = sse.Comment("ping")
)

// Sink is the write side of one open stream. Every Write carries exactly one
// complete frame and is followed by Flush.
type Sink interface {
	Write(p []byte) (int, error)
	Flush() error
	SetWriteDeadline(deadline time.Time) error
}

// Connection is one open stream.
type Connection struct {
	id      uuid.UUID
	sink    Sink
	queue   *frameQueue
	clock   clockwork.Clock
	cfg     Config
	metrics *metrics.StreamMetrics
	logger  *slog.Logger
	state   atomic.Int32
	cancel  context.CancelCauseFunc
}

func newConnection(sink Sink, cfg Config, clock clockwork.Clock, m *metrics.StreamMetrics, cancel context.CancelCauseFunc) *Connection {
	id := uuid.New()
	return &Connection{
		id:      id,
		sink:    sink,
		queue:   newFrameQueue(cfg.BufferSize, cfg.OverflowPolicy),
		clock:   clock,
		cfg:     cfg,
		metrics: m,
		logger:  slog.With("connection_id", id.String()),
		cancel:  cancel,
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.metrics.StateTransitions.WithLabelValues(s.String()).Inc()
}

// run streams sub to the sink until ctx is cancelled, a write fails or a producer
// gives up. The subscription is released exactly once on every path.
func (c *Connection) run(ctx context.Context, sub domain.Subscription) error {
	release := sync.OnceValue(sub.Close)
	defer func() {
		_ = release()
		c.setState(StateClosed)
	}()

	if err := c.write(ctx, queuedFrame{frame: connectedFrame, kind: frameConnected}); err != nil {
		c.setState(StateClosing)
		c.closed(ctx, closeReasonWriteError, err)
		if rerr := release(); rerr != nil {
			c.logger.WarnContext(ctx, "Failed to release subscription", "error", rerr)
		}
		return err
	}
	c.setState(StateStreaming)
	c.logger.DebugContext(ctx, "Stream connected", "topic", c.cfg.Topic)

	producerCtx, stopProducers := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(producerCtx)
	g.Go(func() error { return c.pumpEvents(gctx, sub.Messages()) })
	g.Go(func() error { return c.heartbeat(gctx) })

	writeErr := c.writeLoop(gctx)

	c.setState(StateClosing)
	stopProducers()
	if err := release(); err != nil {
		c.logger.WarnContext(ctx, "Failed to release subscription", "error", err)
	}
	producerErr := g.Wait()

	switch {
	case writeErr != nil:
		c.closed(ctx, closeReasonWriteError, writeErr)
		return writeErr
	case ctx.Err() != nil:
		if errors.Is(context.Cause(ctx), ErrHubStopped) {
			c.closed(ctx, closeReasonShutdown, nil)
		} else {
			c.closed(ctx, closeReasonCancelled, nil)
		}
		return nil
	case errors.Is(producerErr, ErrQueueOverflow):
		c.closed(ctx, closeReasonOverflow, producerErr)
		return producerErr
	case errors.Is(producerErr, domain.ErrSubscriptionClosed):
		c.closed(ctx, closeReasonSubscriptionClosed, producerErr)
		return producerErr
	default:
		c.closed(ctx, closeReasonCancelled, producerErr)
		return producerErr
	}
}

// pumpEvents turns every inbound message into an agent_update frame.
func (c *Connection) pumpEvents(ctx context.Context, messages <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return domain.ErrSubscriptionClosed
			}
			frame := sse.Data(domain.EventKindAgentUpdate, string(payload))
			dropped, ok := c.queue.push(queuedFrame{frame: frame, kind: frameEvent})
			if !ok {
				c.metrics.QueueOverflows.WithLabelValues(string(c.cfg.OverflowPolicy)).Inc()
				return fmt.Errorf("%w: %d frames pending", ErrQueueOverflow, c.queue.size())
			}
			if dropped {
				c.metrics.QueueOverflows.WithLabelValues(string(c.cfg.OverflowPolicy)).Inc()
				c.logger.WarnContext(ctx, "Slow stream, dropped oldest queued frame")
			}
		}
	}
}

// heartbeat queues a ping comment every interval. A full queue already has
// traffic pending, so the ping is skipped rather than displacing events.
func (c *Connection) heartbeat(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if !c.queue.offer(queuedFrame{frame: heartbeatFrame, kind: frameHeartbeat}) {
				c.metrics.HeartbeatsSkipped.Inc()
			}
		}
	}
}

// writeLoop is the connection's only writer after the connected frame.
func (c *Connection) writeLoop(ctx context.Context) error {
	var batch []queuedFrame
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.queue.readyChan():
			batch = c.queue.drain(batch[:0])
			for _, qf := range batch {
				if err := c.write(ctx, qf); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Connection) write(ctx context.Context, qf queuedFrame) error {
	if ctx.Err() != nil {
		return nil
	}

	start := c.clock.Now()
	if c.cfg.WriteTimeout > 0 {
		_ = c.sink.SetWriteDeadline(start.Add(c.cfg.WriteTimeout))
	}

	if _, err := c.sink.Write(qf.frame); err != nil {
		c.metrics.WriteFailures.Inc()
		return fmt.Errorf("write %s frame: %w", qf.kind, err)
	}
	if err := c.sink.Flush(); err != nil {
		c.metrics.WriteFailures.Inc()
		return fmt.Errorf("flush %s frame: %w", qf.kind, err)
	}

	c.metrics.WriteDuration.Observe(c.clock.Since(start).Seconds())
	c.metrics.FramesWritten.WithLabelValues(string(qf.kind)).Inc()
	return nil
}

func (c *Connection) closed(ctx context.Context, reason string, err error) {
	c.metrics.ConnectionsClosed.WithLabelValues(reason).Inc()
	if err != nil {
		c.logger.WarnContext(ctx, "Stream closed", "reason", reason, "error", err)
		return
	}
	c.logger.DebugContext(ctx, "Stream closed", "reason", reason)
}
