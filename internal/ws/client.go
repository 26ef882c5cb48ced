package ws

import (
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"relay-server/internal/relay"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 64 * 1024 // 64 KB

	// Outbound frame buffer per connection
	sendBufferSize = 256
)

// Client is one live connection. The id is opaque and used only for
// logging; user is the optional display name from the handshake token.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
	user string

	// rooms this client is joined to, owned by the hub
	rooms map[string]struct{}
}

// ReadPump pumps messages from the socket into the hub and gateway.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("[WS] Unexpected close", "conn", c.id, "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps frames from the hub to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Error("[WS] Failed to get writer", "conn", c.id, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				slog.Error("[WS] Failed to close writer", "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[WS] Failed to send ping", "conn", c.id, "error", err)
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var frame relay.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		slog.Warn("[WS] Dropping unreadable frame", "conn", c.id, "error", err)
		return
	}

	switch frame.Type {
	case relay.EventJoin, relay.EventLeave:
		// a non-string room key is silently ignored
		var room string
		if err := json.Unmarshal(frame.Data, &room); err != nil {
			slog.Debug("[WS] Ignoring malformed room key", "conn", c.id, "type", frame.Type)
			return
		}
		if frame.Type == relay.EventJoin {
			c.hub.Join(c, room)
		} else {
			c.hub.Leave(c, room)
		}

	default:
		if !c.hub.gateway.Handles(frame.Type) {
			slog.Warn("[WS] Unknown event type", "type", frame.Type, "conn", c.id)
			return
		}
		c.relayEvent(frame.Type, frame.Data)
	}
}

// relayEvent contains every relay failure within this one message: the
// origin connection gets a point-to-point error frame and nothing else is
// affected.
func (c *Client) relayEvent(kind string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[RELAY] Handler panic", "kind", kind, "conn", c.id, "panic", r)
			c.sendError(kind)
		}
	}()

	bc, err := c.hub.gateway.Dispatch(kind, data)
	if err != nil {
		slog.Debug("[RELAY] Relay failed", "kind", kind, "conn", c.id, "error", err)
		c.sendError(kind)
		return
	}

	if err := c.hub.publisher.Publish(bc); err != nil {
		slog.Error("[RELAY] Publish failed", "kind", kind, "room", bc.Room, "conn", c.id, "error", err)
		c.sendError(kind)
	}
}

func (c *Client) sendError(kind string) {
	frame, err := relay.ErrorFrame(kind)
	if err != nil {
		return
	}
	// the send channel is closed under the hub lock, so only send while the
	// client is still registered
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
