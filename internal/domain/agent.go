package domain

import (
	"context"
	"strings"
)

// AgentState is the lifecycle state of an agent record.
type AgentState string

const (
	AgentStateRunning AgentState = "running"
	AgentStatePaused  AgentState = "paused"
)

// ParseAgentState normalises s (case-insensitive, surrounding whitespace ignored)
// and returns ErrInvalidState for anything other than running or paused.
func ParseAgentState(s string) (AgentState, error) {
	switch state := AgentState(strings.ToLower(strings.TrimSpace(s))); state {
	case AgentStateRunning, AgentStatePaused:
		return state, nil
	default:
		return "", ErrInvalidState
	}
}

// Agent is the record kept in the shared hash and carried by every event.
type Agent struct {
	ID    string     `json:"agentId"`
	State AgentState `json:"state"`
}

// AgentStore abstracts the shared key-value record store.
type AgentStore interface {
	GetAll(ctx context.Context) ([]Agent, error)
	Set(ctx context.Context, agent Agent) error
}
