package broadcast

import (
	"fmt"
	"strings"
)

// State is a connection lifecycle state. Transitions only move forward:
// Opening → Streaming → Closing → Closed.
type State int32

const (
	StateOpening State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// OverflowPolicy decides what a connection does when an event arrives while its
// queue is full.
type OverflowPolicy string

const (
	// OverflowDisconnect closes the connection. Delivery to the remaining frames
	// stays exactly-once and ordered; the client reconnects.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropOldest discards the oldest queued frame to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

// ParseOverflowPolicy parses a policy name, case-insensitively.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverflowDisconnect, OverflowDropOldest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q (want %q or %q)", s, OverflowDisconnect, OverflowDropOldest)
	}
}

// close reasons, used as metric labels
const (
	closeReasonCancelled          = "cancelled"
	closeReasonShutdown           = "shutdown"
	closeReasonWriteError         = "write_error"
	closeReasonOverflow           = "overflow"
	closeReasonSubscriptionClosed = "subscription_closed"
	closeReasonSetupFailed        = "setup_failed"
)
