package redis

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/agentpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_AgentUpdateAcrossClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Two clients stand in for two service instances sharing one Redis.
	instanceA := setupIntegrationClient(t)
	instanceB := setupIntegrationClient(t)

	sub, err := NewSubscriber(instanceA).Subscribe(ctx, testChannel)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	store := NewAgentStore(instanceB, "agents")
	agent := domain.Agent{ID: "a1", State: domain.AgentStateRunning}
	require.NoError(t, store.Set(ctx, agent))

	event, err := domain.NewAgentUpdate(agent)
	require.NoError(t, err)
	require.NoError(t, NewPublisher(instanceB).Publish(ctx, testChannel, event.Payload))

	assert.Equal(t, `{"agentId":"a1","state":"running"}`, receive(t, sub.Messages()))

	agents, err := NewAgentStore(instanceA, "agents").GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Agent{agent}, agents)
}

func TestIntegration_NoDeliveryAfterClose(t *testing.T) {
	client := setupIntegrationClient(t)
	ctx := context.Background()

	sub, err := NewSubscriber(client).Subscribe(ctx, testChannel)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	assert.Eventually(t, func() bool {
		receivers, err := client.Publish(ctx, testChannel, "late").Result()
		return err == nil && receivers == 0
	}, 2*time.Second, 20*time.Millisecond, "closed subscription is gone from the server")
}
