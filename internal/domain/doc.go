// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (agent.go, event.go, pubsub.go, errors.go) hold shared types
// and the contracts the adapters implement. No implementation code, just contracts.
package domain
