package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/agentpulse/internal/broadcast"
	"github.com/pscheid92/agentpulse/internal/platform/config"
	apperrors "github.com/pscheid92/agentpulse/internal/platform/errors"
	"github.com/pscheid92/agentpulse/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvents_StreamsFramesWithHeaders(t *testing.T) {
	hub := &mockHub{
		serveFn: func(_ context.Context, sink broadcast.Sink) error {
			require.NoError(t, sink.SetWriteDeadline(time.Now().Add(time.Second)))
			for _, frame := range [][]byte{sse.Comment("connected"), sse.Data("agent_update", `{"agentId":"A","state":"running"}`)} {
				if _, err := sink.Write(frame); err != nil {
					return err
				}
				if err := sink.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	srv := newTestServer(t, &mockAgentService{}, withHub(hub))

	rec := doRequest(srv, http.MethodGet, "/events", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		": connected\n\nevent: agent_update\ndata: {\"agentId\":\"A\",\"state\":\"running\"}\n\n",
		rec.Body.String())
}

func TestHandleEvents_SubscribeFailure(t *testing.T) {
	hub := &mockHub{
		serveFn: func(_ context.Context, _ broadcast.Sink) error {
			return fmt.Errorf("%w %q: %w", broadcast.ErrSubscribe, "sse:messages", errors.New("connection refused"))
		},
	}
	srv := newTestServer(t, &mockAgentService{}, withHub(hub))

	rec := doRequest(srv, http.MethodGet, "/events", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeUnavailable, resp.Type)
	assert.Equal(t, "event stream unavailable", resp.Error)
}

func TestHandleEvents_HubStopped(t *testing.T) {
	hub := &mockHub{
		serveFn: func(_ context.Context, _ broadcast.Sink) error {
			return broadcast.ErrHubStopped
		},
	}
	srv := newTestServer(t, &mockAgentService{}, withHub(hub))

	rec := doRequest(srv, http.MethodGet, "/events", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "server is shutting down", decodeError(t, rec).Error)
}

func TestHandleEvents_FailureAfterStreamStartedWritesNothingMore(t *testing.T) {
	hub := &mockHub{
		serveFn: func(_ context.Context, sink broadcast.Sink) error {
			_, _ = sink.Write(sse.Comment("connected"))
			return broadcast.ErrQueueOverflow
		},
	}
	srv := newTestServer(t, &mockAgentService{}, withHub(hub))

	rec := doRequest(srv, http.MethodGet, "/events", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ": connected\n\n", rec.Body.String())
}

func TestHandleEvents_ConnectionLimit(t *testing.T) {
	var served bool
	hub := &mockHub{
		serveFn: func(_ context.Context, _ broadcast.Sink) error {
			served = true
			return nil
		},
	}
	srv := newTestServer(t, &mockAgentService{}, withHub(hub), withConfig(func(cfg *config.Config) {
		cfg.MaxStreamConnections = 0
	}))

	rec := doRequest(srv, http.MethodGet, "/events", "")

	assert.False(t, served)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(LimitReasonGlobal), resp.Context["reason"])
	assert.InDelta(t, 1, testutil.ToFloat64(srv.metrics.Stream.ConnectionsDenied.WithLabelValues(string(LimitReasonGlobal))), 0)
}

func TestHandleEvents_ReleasesSlotWhenStreamEnds(t *testing.T) {
	srv := newTestServer(t, &mockAgentService{}, withConfig(func(cfg *config.Config) {
		cfg.MaxStreamConnections = 1
		cfg.MaxStreamConnectionsPerIP = 1
	}))

	first := doRequest(srv, http.MethodGet, "/events", "")
	second := doRequest(srv, http.MethodGet, "/events", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, int64(0), srv.limits.Current())
}
