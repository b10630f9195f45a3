package dashboard

import (
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Hub owns connected clients and forwards matching bus events to them
// as stream frames (spec §4.8). It never blocks on a slow client.
type Hub struct {
	clock             clock.Clock
	bus               *bus.Bus
	heartbeatInterval time.Duration
	log               *logging.Logger

	mu      sync.Mutex
	clients map[string]*Client

	droppedFrames int64
}

// New creates a Hub and wires it to every AvailableStreams topic on b.
func New(clk clock.Clock, b *bus.Bus, heartbeatInterval time.Duration, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.New("dashboard", "info", "json")
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	h := &Hub{
		clock:             clk,
		bus:               b,
		heartbeatInterval: heartbeatInterval,
		log:               log,
		clients:           make(map[string]*Client),
	}
	if b != nil {
		for _, stream := range AvailableStreams {
			stream := stream
			b.Subscribe(stream, func(ev bus.Event) { h.Broadcast(stream, ev.Data, nil) })
		}
	}
	return h
}

// Connect registers a new client over conn and returns its welcome
// frame (spec §4.8: clientId + available stream names).
func (h *Hub) Connect(conn Conn) (*Client, WelcomeFrame) {
	c := newClient(conn, h.clock.NowMs())

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	welcome := WelcomeFrame{Type: "welcome", ClientID: c.ID, Streams: AvailableStreams}
	return c, welcome
}

// Disconnect removes a client, e.g. on socket close or heartbeat
// timeout.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		close(c.send)
	}
}

// HandleFrame applies a client frame (subscribe/unsubscribe/set_filters
// /heartbeat) to the named client.
func (h *Hub) HandleFrame(clientID string, frame ClientFrame) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		return
	}
	switch frame.Type {
	case FrameSubscribe:
		c.subscribe(frame.Streams)
	case FrameUnsubscribe:
		c.unsubscribe(frame.Streams)
	case FrameSetFilters:
		c.setFilters(frame.Filters)
	case FrameHeartbeat:
		c.touchHeartbeat(h.clock.NowMs())
	}
}

// Broadcast pushes a stream update to every subscriber whose filter
// predicate matches the payload. A nil predicate matches everything.
func (h *Hub) Broadcast(stream string, payload any, predicate FilterPredicate) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	frame := StreamFrame{Type: "update", Stream: stream, Payload: payload}
	for _, c := range clients {
		if !c.subscribedTo(stream) {
			continue
		}
		if !c.matchesFilters(stream, payload, predicate) {
			continue
		}
		if !c.enqueue(frame) {
			h.mu.Lock()
			h.droppedFrames++
			h.mu.Unlock()
		}
	}
}

// ReapStaleClients drops every client that has not sent a heartbeat
// within 2×heartbeatInterval (spec §4.8).
func (h *Hub) ReapStaleClients() []string {
	now := h.clock.NowMs()
	timeout := HeartbeatTimeout(h.heartbeatInterval).Milliseconds()

	h.mu.Lock()
	var stale []string
	for id, c := range h.clients {
		if c.isStale(now, timeout) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stale {
		h.Disconnect(id)
	}
	return stale
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DroppedFrames returns the cumulative count of frames dropped to
// backpressure.
func (h *Hub) DroppedFrames() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.droppedFrames
}
