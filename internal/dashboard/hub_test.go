package dashboard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
)

// fakeConn is an in-memory Conn for exercising Hub logic without a
// real socket.
type fakeConn struct {
	mu      sync.Mutex
	written []any
	closed  bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v)
	return nil
}
func (f *fakeConn) ReadJSON(v any) error { return nil }
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.written...)
}

func TestConnectReturnsWelcomeFrameWithClientIDAndStreams(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	_, welcome := h.Connect(&fakeConn{})
	require.NotEmpty(t, welcome.ClientID)
	require.Equal(t, AvailableStreams, welcome.Streams)
	require.Equal(t, 1, h.ClientCount())
}

func TestBroadcastOnlyReachesSubscribedClients(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})
	c2, _ := h.Connect(&fakeConn{})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameSubscribe, Streams: []string{"metrics"}})

	h.Broadcast("metrics", map[string]any{"p99": 500}, nil)

	require.Len(t, c1.send, 1)
	require.Len(t, c2.send, 0)
}

func TestBroadcastRespectsFilterPredicate(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameSubscribe, Streams: []string{"metrics"}})

	predicate := func(stream string, payload any) bool {
		m, ok := payload.(map[string]any)
		return ok && m["module"] == "qflow"
	}

	h.Broadcast("metrics", map[string]any{"module": "qindex"}, predicate)
	require.Len(t, c1.send, 0)

	h.Broadcast("metrics", map[string]any{"module": "qflow"}, predicate)
	require.Len(t, c1.send, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameSubscribe, Streams: []string{"metrics"}})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameUnsubscribe, Streams: []string{"metrics"}})

	h.Broadcast("metrics", map[string]any{}, nil)
	require.Len(t, c1.send, 0)
}

func TestBackpressureDropsFramesSilentlyWhenBufferFull(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameSubscribe, Streams: []string{"metrics"}})

	for i := 0; i < sendBuffer+10; i++ {
		h.Broadcast("metrics", map[string]any{"i": i}, nil)
	}

	require.Len(t, c1.send, sendBuffer)
	require.Greater(t, h.DroppedFrames(), int64(0))
}

func TestHeartbeatKeepsClientAlive(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})

	mc.Advance(50 * time.Second)
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameHeartbeat})

	mc.Advance(50 * time.Second)
	stale := h.ReapStaleClients()
	require.Empty(t, stale)
	require.Equal(t, 1, h.ClientCount())
}

func TestClientDroppedAfterTwiceHeartbeatIntervalWithoutHeartbeat(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	h := New(mc, nil, 30*time.Second, nil)

	h.Connect(&fakeConn{})

	mc.Advance(61 * time.Second) // > 2×30s
	stale := h.ReapStaleClients()

	require.Len(t, stale, 1)
	require.Equal(t, 0, h.ClientCount())
}

func TestBroadcastForwardsMatchingBusTopic(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())
	h := New(mc, b, 30*time.Second, nil)

	c1, _ := h.Connect(&fakeConn{})
	h.HandleFrame(c1.ID, ClientFrame{Type: FrameSubscribe, Streams: []string{"metrics"}})

	b.Publish("metrics", map[string]any{"p99": 900})

	require.Len(t, c1.send, 1)
}
