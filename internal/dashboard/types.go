// Package dashboard implements the Dashboard Stream (spec §4.8): a
// push channel over gorilla/websocket that broadcasts bus events to
// subscribed clients, optionally narrowed by a broadcast-wide predicate,
// with heartbeat-based liveness and silent backpressure drops. Filters a
// client sends with set_filters are stored on the client but not applied
// to broadcasts.
package dashboard

import "time"

// ClientFrame is a message a client sends over the socket.
type ClientFrame struct {
	Type    string         `json:"type"`
	Streams []string       `json:"streams,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSetFilters  = "set_filters"
	FrameHeartbeat   = "heartbeat"
)

// WelcomeFrame is sent once, immediately after a client connects.
type WelcomeFrame struct {
	Type    string   `json:"type"`
	ClientID string  `json:"client_id"`
	Streams []string `json:"streams"`
}

// StreamFrame is a broadcast update sent to matching subscribers.
type StreamFrame struct {
	Type    string `json:"type"`
	Stream  string `json:"stream"`
	Payload any    `json:"payload"`
}

// FilterPredicate reports whether a stream payload is delivered; the
// caller of Broadcast supplies one predicate for all subscribed clients.
type FilterPredicate func(stream string, payload any) bool

// AvailableStreams is the fixed set of stream names the dashboard
// exposes. New subscribes the hub to bus topics of these same names; the
// components publish under their own topic names (e.g. metric_recorded),
// not these.
var AvailableStreams = []string{
	"metrics", "correlation", "cache", "burn_rate", "ladder", "scaler", "predictor", "alerts",
}

// HeartbeatTimeout returns the duration after which a client that has
// not sent a heartbeat is dropped (spec §4.8: 2×heartbeatInterval).
func HeartbeatTimeout(interval time.Duration) time.Duration {
	return 2 * interval
}
