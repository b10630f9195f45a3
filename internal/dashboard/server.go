package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/flowgovernor/internal/clock"
)

// upgrader is shared across connections; origin checking is left to
// the caller's reverse proxy, matching the operator-controlled
// deployment model the rest of the control plane assumes.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts *websocket.Conn to the Hub's Conn interface.
type wsConn struct {
	*websocket.Conn
}

func (w wsConn) WriteJSON(v any) error { return w.Conn.WriteJSON(v) }
func (w wsConn) ReadJSON(v any) error  { return w.Conn.ReadJSON(v) }

// ServeHTTP upgrades the connection, sends the welcome frame, then
// runs the read and write pumps until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithFields(map[string]any{"remote": r.RemoteAddr}).Warn("dashboard: upgrade failed")
		return
	}
	conn := wsConn{raw}

	client, welcome := h.Connect(conn)
	if err := conn.WriteJSON(welcome); err != nil {
		h.Disconnect(client.ID)
		return
	}

	done := make(chan struct{})
	go h.writePump(client, done)
	h.readPump(client, done)
}

func (h *Hub) readPump(c *Client, done chan struct{}) {
	defer func() {
		close(done)
		h.Disconnect(c.ID)
	}()
	for {
		var frame ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		h.HandleFrame(c.ID, frame)
	}
}

func (h *Hub) writePump(c *Client, done chan struct{}) {
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// RunReaper drops stale clients every interval, timed by the hub's
// clock, until stop is closed.
func (h *Hub) RunReaper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = h.heartbeatInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	clock.Run(ctx, h.clock, clock.Fixed(interval), func() { h.ReapStaleClients() })
}
