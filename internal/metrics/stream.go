package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics holds Prometheus metrics for event-stream connections.
type StreamMetrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsClosed *prometheus.CounterVec
	ConnectionsDenied *prometheus.CounterVec
	FramesWritten     *prometheus.CounterVec
	WriteFailures     prometheus.Counter
	WriteDuration     prometheus.Histogram
	QueueOverflows    *prometheus.CounterVec
	HeartbeatsSkipped prometheus.Counter
	StateTransitions  *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics on the given registry.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Number of open event-stream connections.",
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections_closed_total",
			Help:      "Total number of closed event-stream connections, by reason.",
		}, []string{"reason"}),
		ConnectionsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections_denied_total",
			Help:      "Total number of event-stream connections rejected by a connection limit, by reason.",
		}, []string{"reason"}),
		FramesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_written_total",
			Help:      "Total number of frames written to event-stream connections, by kind.",
		}, []string{"kind"}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "write_failures_total",
			Help:      "Total number of failed frame writes or flushes.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "write_duration_seconds",
			Help:      "Duration of a frame write including flush.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		QueueOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "queue_overflows_total",
			Help:      "Total number of per-connection queue overflows, by overflow policy.",
		}, []string{"policy"}),
		HeartbeatsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "heartbeats_skipped_total",
			Help:      "Total number of heartbeats skipped because the connection queue was full.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state_transitions_total",
			Help:      "Total number of connection lifecycle transitions, by target state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectionsClosed,
		m.ConnectionsDenied,
		m.FramesWritten,
		m.WriteFailures,
		m.WriteDuration,
		m.QueueOverflows,
		m.HeartbeatsSkipped,
		m.StateTransitions,
	)
	return m
}
