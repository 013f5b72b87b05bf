package broadcast

import (
	"testing"

	"github.com/pscheid92/agentpulse/internal/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventFrame(payload string) queuedFrame {
	return queuedFrame{frame: sse.Data("agent_update", payload), kind: frameEvent}
}

func payloads(frames []queuedFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, string(f.frame))
	}
	return out
}

func TestFrameQueue_FIFO(t *testing.T) {
	q := newFrameQueue(4, OverflowDisconnect)

	for _, p := range []string{"a", "b", "c"} {
		dropped, ok := q.push(eventFrame(p))
		require.True(t, ok)
		require.False(t, dropped)
	}

	got := q.drain(nil)
	assert.Equal(t, payloads([]queuedFrame{eventFrame("a"), eventFrame("b"), eventFrame("c")}), payloads(got))
	assert.Zero(t, q.size())
	assert.Empty(t, q.drain(nil))
}

func TestFrameQueue_DisconnectPolicyRejectsWhenFull(t *testing.T) {
	q := newFrameQueue(2, OverflowDisconnect)
	q.push(eventFrame("a"))
	q.push(eventFrame("b"))

	dropped, ok := q.push(eventFrame("c"))

	assert.False(t, ok)
	assert.False(t, dropped)
	assert.Equal(t, payloads([]queuedFrame{eventFrame("a"), eventFrame("b")}), payloads(q.drain(nil)))
}

func TestFrameQueue_DropOldestPolicy(t *testing.T) {
	q := newFrameQueue(2, OverflowDropOldest)
	q.push(eventFrame("a"))
	q.push(eventFrame("b"))

	dropped, ok := q.push(eventFrame("c"))

	assert.True(t, ok)
	assert.True(t, dropped)
	assert.Equal(t, payloads([]queuedFrame{eventFrame("b"), eventFrame("c")}), payloads(q.drain(nil)))
}

func TestFrameQueue_OfferNeverDisplaces(t *testing.T) {
	q := newFrameQueue(1, OverflowDropOldest)
	require.True(t, q.offer(queuedFrame{frame: heartbeatFrame, kind: frameHeartbeat}))

	assert.False(t, q.offer(queuedFrame{frame: heartbeatFrame, kind: frameHeartbeat}))
	assert.Equal(t, 1, q.size())
}

func TestFrameQueue_ReadySignalCoalesces(t *testing.T) {
	q := newFrameQueue(8, OverflowDisconnect)

	select {
	case <-q.readyChan():
		t.Fatal("empty queue must not signal")
	default:
	}

	q.push(eventFrame("a"))
	q.push(eventFrame("b"))

	select {
	case <-q.readyChan():
	default:
		t.Fatal("push must signal")
	}
	select {
	case <-q.readyChan():
		t.Fatal("signals coalesce into one")
	default:
	}
	assert.Len(t, q.drain(nil), 2)
}

func TestFrameQueue_MinimumCapacity(t *testing.T) {
	q := newFrameQueue(0, OverflowDisconnect)

	_, ok := q.push(eventFrame("a"))
	assert.True(t, ok)
	_, ok = q.push(eventFrame("b"))
	assert.False(t, ok)
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{in: "disconnect", want: OverflowDisconnect},
		{in: " Drop-Oldest ", want: OverflowDropOldest},
		{in: "block", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverflowPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
