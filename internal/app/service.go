package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/pscheid92/agentpulse/internal/metrics"
)

// ErrPublish marks a mutation that was stored but could not be announced.
var ErrPublish = errors.New("publish agent update")

// AgentService is the only component that touches both the store and the
// events topic.
type AgentService struct {
	store     domain.AgentStore
	publisher domain.EventPublisher
	topic     string
	metrics   *metrics.AgentMetrics
	newID     func() string
}

func NewAgentService(store domain.AgentStore, publisher domain.EventPublisher, topic string, m *metrics.AgentMetrics) *AgentService {
	return &AgentService{
		store:     store,
		publisher: publisher,
		topic:     topic,
		metrics:   m,
		newID:     func() string { return uuid.New().String() },
	}
}

// List returns a snapshot of all agents as of the call.
func (s *AgentService) List(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// Create registers an agent in the running state. An empty id gets a fresh UUID.
// Creating an existing id resets it to running.
func (s *AgentService) Create(ctx context.Context, id string) (domain.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.newID()
	}
	agent := domain.Agent{ID: id, State: domain.AgentStateRunning}

	if err := s.apply(ctx, "create", agent); err != nil {
		return domain.Agent{}, err
	}
	slog.InfoContext(ctx, "Agent created", "agent_id", agent.ID)
	return agent, nil
}

// UpdateState sets the agent's state. Anything but running or paused (any case)
// fails with domain.ErrInvalidState before the store or topic is touched.
// Unknown ids are created.
func (s *AgentService) UpdateState(ctx context.Context, id, state string) (domain.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.metrics.Mutations.WithLabelValues("update_state", "invalid").Inc()
		return domain.Agent{}, domain.ErrEmptyAgentID
	}
	parsed, err := domain.ParseAgentState(state)
	if err != nil {
		s.metrics.Mutations.WithLabelValues("update_state", "invalid").Inc()
		return domain.Agent{}, fmt.Errorf("%w: %q", err, state)
	}
	agent := domain.Agent{ID: id, State: parsed}

	if err := s.apply(ctx, "update_state", agent); err != nil {
		return domain.Agent{}, err
	}
	slog.InfoContext(ctx, "Agent state changed", "agent_id", agent.ID, "state", agent.State)
	return agent, nil
}

// apply stores agent and then publishes exactly one update carrying it. A failed
// publish leaves the stored state in place.
func (s *AgentService) apply(ctx context.Context, operation string, agent domain.Agent) error {
	event, err := domain.NewAgentUpdate(agent)
	if err != nil {
		s.metrics.Mutations.WithLabelValues(operation, "error").Inc()
		return err
	}

	if err := s.store.Set(ctx, agent); err != nil {
		s.metrics.Mutations.WithLabelValues(operation, "error").Inc()
		return fmt.Errorf("%s agent %s: %w", operation, agent.ID, err)
	}

	if err := s.publisher.Publish(ctx, s.topic, event.Payload); err != nil {
		s.metrics.Mutations.WithLabelValues(operation, "error").Inc()
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Agent stored but update not published", "agent_id", agent.ID, "error", err)
		return fmt.Errorf("%w for agent %s: %w", ErrPublish, agent.ID, err)
	}

	s.metrics.Mutations.WithLabelValues(operation, "success").Inc()
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}
