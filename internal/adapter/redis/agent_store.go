package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/pscheid92/agentpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// AgentStore keeps agent states in a single Redis hash: field = agent ID,
// value = state.
type AgentStore struct {
	rdb *goredis.Client
	key string
}

var _ domain.AgentStore = (*AgentStore)(nil)

func NewAgentStore(rdb *goredis.Client, key string) *AgentStore {
	return &AgentStore{rdb: rdb, key: key}
}

// GetAll returns every stored agent, ordered by ID. States are returned as
// stored, even if another writer put an unknown value into the hash.
func (s *AgentStore) GetAll(ctx context.Context) ([]domain.Agent, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agents from %s: %w", s.key, err)
	}

	agents := make([]domain.Agent, 0, len(fields))
	for id, state := range fields {
		agents = append(agents, domain.Agent{ID: id, State: domain.AgentState(state)})
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// Set upserts the agent's state.
func (s *AgentStore) Set(ctx context.Context, agent domain.Agent) error {
	if err := s.rdb.HSet(ctx, s.key, agent.ID, string(agent.State)).Err(); err != nil {
		return fmt.Errorf("failed to store agent %s: %w", agent.ID, err)
	}
	return nil
}
