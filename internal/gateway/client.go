package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192
	sendBufferSize = 64
)

// Client is one websocket session. The hub loop writes to send; the write
// pump drains it. Identity is assigned here, never taken from the client.
type Client struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		name: "user-" + id[:8],
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *Client) ID() string   { return c.id }
func (c *Client) Name() string { return c.name }

// trySend queues a frame without blocking. Slow clients lose messages
// rather than stalling the hub loop.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump decodes inbound frames and feeds them to the hub. Malformed
// frames are dropped; a connection favors availability over strictness.
func (c *Client) readPump(h *Hub) {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			h.post(event{kind: evDisconnect, client: c, reason: disconnectReason(err)})
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Debug("dropping malformed frame", "id", c.id, "error", err)
			continue
		}

		switch frame.Event {
		case EventJoinRoom:
			h.post(event{kind: evJoinRoom, client: c, roomID: decodeRoomID(frame.Data)})
		case EventLeaveRoom:
			h.post(event{kind: evLeaveRoom, client: c, roomID: decodeRoomID(frame.Data)})
		case EventMessage:
			var p struct {
				Data map[string]any `json:"data"`
			}
			_ = json.Unmarshal(frame.Data, &p)
			h.post(event{kind: evMessage, client: c, payload: p.Data})
		case EventTyping:
			var p struct {
				RoomID   string `json:"roomId"`
				IsTyping bool   `json:"isTyping"`
			}
			_ = json.Unmarshal(frame.Data, &p)
			h.post(event{kind: evTyping, client: c, roomID: p.RoomID, isTyping: p.IsTyping})
		case EventPing:
			h.post(event{kind: evPing, client: c})
		case EventGetMetrics:
			h.post(event{kind: evGetMetrics, client: c})
		case EventGetUsers:
			h.post(event{kind: evGetUsers, client: c})
		default:
			h.logger.Debug("dropping unknown event", "id", c.id, "event", frame.Event)
		}
	}
}

// writePump drains the send channel and keeps the connection alive with
// protocol-level pings.
func (c *Client) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("write failed", "id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decodeRoomID(data json.RawMessage) string {
	var p struct {
		RoomID string `json:"roomId"`
	}
	_ = json.Unmarshal(data, &p)
	return p.RoomID
}

func disconnectReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "client closed"
	}
	return "transport close"
}
