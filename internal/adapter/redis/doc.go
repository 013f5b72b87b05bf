// Package redis implements the Redis adapters of the service.
//
// Publisher and Subscriber carry agent updates over a single pub/sub channel.
// AgentStore keeps the current state of every agent in one hash. All commands
// pass through MetricsHook and CircuitBreakerHook.
package redis
