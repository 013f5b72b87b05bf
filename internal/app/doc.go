// Package app provides the application service layer.
//
// AgentService orchestrates the agent use cases: list, create and state change.
// Every mutation is written to the store first and then announced on the events
// topic. Depends on domain interfaces, not concrete implementations.
package app
