package domain

import (
	"encoding/json"
	"fmt"
)

// EventKindAgentUpdate names the SSE event carrying an agent's post-mutation state.
const EventKindAgentUpdate = "agent_update"

// Event is one published notification. It has no identity beyond its position
// in the topic's delivery order.
type Event struct {
	Kind    string
	Payload []byte
}

// NewAgentUpdate serialises agent into an agent_update event.
func NewAgentUpdate(agent Agent) (Event, error) {
	payload, err := json.Marshal(agent)
	if err != nil {
		return Event{}, fmt.Errorf("marshal agent %q: %w", agent.ID, err)
	}
	return Event{Kind: EventKindAgentUpdate, Payload: payload}, nil
}
