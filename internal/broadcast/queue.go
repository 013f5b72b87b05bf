package broadcast

import (
	"sync"

	"github.com/pscheid92/agentpulse/internal/sse"
)

type frameKind string

const (
	frameConnected frameKind = "connected"
	frameEvent     frameKind = "event"
	frameHeartbeat frameKind = "heartbeat"
)

type queuedFrame struct {
	frame sse.Frame
	kind  frameKind
}

// frameQueue is the bounded FIFO between a connection's producers and its writer.
// Any number of producers may push; exactly one consumer drains.
type frameQueue struct {
	mu       sync.Mutex
	frames   []queuedFrame
	capacity int
	policy   OverflowPolicy
	ready    chan struct{}
}

func newFrameQueue(capacity int, policy OverflowPolicy) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		frames:   make([]queuedFrame, 0, capacity),
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
	}
}

// push enqueues f, applying the overflow policy when the queue is full.
// dropped reports that the oldest frame was discarded to make room; ok is false
// when the policy demands the connection be closed instead.
func (q *frameQueue) push(f queuedFrame) (dropped, ok bool) {
	q.mu.Lock()
	if len(q.frames) >= q.capacity {
		if q.policy != OverflowDropOldest {
			q.mu.Unlock()
			return false, false
		}
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		dropped = true
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	q.signal()
	return dropped, true
}

// offer enqueues f only if there is room, never displacing queued frames.
func (q *frameQueue) offer(f queuedFrame) bool {
	q.mu.Lock()
	if len(q.frames) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	q.signal()
	return true
}

// drain appends all queued frames to dst in FIFO order and empties the queue.
func (q *frameQueue) drain(dst []queuedFrame) []queuedFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	dst = append(dst, q.frames...)
	clear(q.frames)
	q.frames = q.frames[:0]
	return dst
}

func (q *frameQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// readyChan fires at least once after any push since the last receive.
func (q *frameQueue) readyChan() <-chan struct{} {
	return q.ready
}

func (q *frameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
