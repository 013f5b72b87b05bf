package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/agentpulse/internal/broadcast"
	apperrors "github.com/pscheid92/agentpulse/internal/platform/errors"
)

// streamSink adapts an echo response to broadcast.Sink. The event-stream
// headers are sent with the first frame, so a stream that fails during setup
// can still answer with a JSON error.
type streamSink struct {
	resp       *echo.Response
	controller *http.ResponseController
	committed  bool
}

func newStreamSink(resp *echo.Response) *streamSink {
	return &streamSink{resp: resp, controller: http.NewResponseController(resp)}
}

func (s *streamSink) Write(p []byte) (int, error) {
	if !s.committed {
		h := s.resp.Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.resp.WriteHeader(http.StatusOK)
		s.committed = true
	}
	return s.resp.Write(p)
}

func (s *streamSink) Flush() error {
	return s.controller.Flush()
}

func (s *streamSink) SetWriteDeadline(deadline time.Time) error {
	err := s.controller.SetWriteDeadline(deadline)
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func (s *Server) handleEvents(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.metrics.Stream.ConnectionsDenied.WithLabelValues(string(reason)).Inc()
		return apperrors.UnavailableError("too many event streams", nil).
			WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	sink := newStreamSink(c.Response())
	err := s.hub.Serve(c.Request().Context(), sink)
	if err == nil || sink.committed {
		// Once the stream has started, failures were logged by the hub and the
		// response cannot carry an error anymore.
		return nil
	}

	switch {
	case errors.Is(err, broadcast.ErrHubStopped):
		return apperrors.UnavailableError("server is shutting down", err)
	case errors.Is(err, broadcast.ErrSubscribe):
		return apperrors.UnavailableError("event stream unavailable", err)
	default:
		return apperrors.InternalError("event stream failed", err)
	}
}
