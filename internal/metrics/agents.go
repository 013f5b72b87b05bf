package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics holds Prometheus metrics for agent mutations and the events they publish.
type AgentMetrics struct {
	Mutations       *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// NewAgentMetrics creates and registers agent metrics on the given registry.
func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "mutations_total",
			Help:      "Total number of agent mutations, by operation and result.",
		}, []string{"operation", "result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "events_published_total",
			Help:      "Total number of agent events published, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Mutations, m.EventsPublished)
	return m
}
