package dashboard

import (
	"sync"

	"github.com/google/uuid"
)

// Conn abstracts the subset of *websocket.Conn the hub needs, so the
// hub's broadcast/heartbeat logic can be exercised without a real
// socket.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// sendBuffer bounds how many frames queue per client before the hub
// starts silently dropping (spec §4.8 backpressure).
const sendBuffer = 64

// Client is one connected dashboard subscriber.
type Client struct {
	ID   string
	conn Conn

	mu            sync.Mutex
	subscriptions map[string]struct{}
	filters       map[string]any
	lastHeartbeat int64

	send   chan StreamFrame
	closed bool
}

func newClient(conn Conn, now int64) *Client {
	return &Client{
		ID:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[string]struct{}),
		filters:       make(map[string]any),
		lastHeartbeat: now,
		send:          make(chan StreamFrame, sendBuffer),
	}
}

func (c *Client) subscribe(streams []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range streams {
		c.subscriptions[s] = struct{}{}
	}
}

func (c *Client) unsubscribe(streams []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range streams {
		delete(c.subscriptions, s)
	}
}

func (c *Client) setFilters(filters map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

func (c *Client) subscribedTo(stream string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[stream]
	return ok
}

func (c *Client) matchesFilters(stream string, payload any, predicate FilterPredicate) bool {
	if predicate == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return predicate(stream, payload)
}

func (c *Client) touchHeartbeat(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = now
}

func (c *Client) isStale(now, timeoutMs int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now-c.lastHeartbeat > timeoutMs
}

// enqueue attempts a non-blocking send; a full buffer means backpressure
// and the frame is dropped silently (spec §4.8).
func (c *Client) enqueue(frame StreamFrame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
