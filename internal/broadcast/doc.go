// Package broadcast implements the per-connection event-stream hub.
//
// Every open stream is a Connection with exactly one writer: the goroutine that
// called Hub.Serve. Two producers feed its bounded queue, the topic subscription
// pump and the heartbeat ticker, so frames can never interleave on the wire.
// The Hub tracks open connections for metrics and shutdown.
package broadcast
