package gateway

import (
	"encoding/json"
	"time"
)

// Wire event names, shared with clients.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventMessage     = "message"
	EventTyping      = "typing"
	EventPing        = "ping"
	EventPong        = "pong"
	EventGetMetrics  = "get_metrics"
	EventMetrics     = "metrics"
	EventGetUsers    = "get_online_users"
	EventOnlineUsers = "online_users"
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
)

// Frame is the envelope for every message on the wire, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// PresenceRecord is the shape of one entry in an online_users broadcast.
type PresenceRecord struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Notification is a server-originated message injected through the HTTP
// control surface and fanned out by the hub.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	RoomID    string    `json:"roomId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsSnapshot is the on-demand stats object sent to clients on connect
// and in reply to get_metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64   `json:"uptimeSeconds"`
	Goroutines     int       `json:"goroutines"`
	HeapAllocBytes uint64    `json:"heapAllocBytes"`
	Connections    int       `json:"connections"`
	Rooms          int       `json:"rooms"`
	Timestamp      time.Time `json:"timestamp"`
}

// Counts is the cheap size view used by /health and the sampler.
type Counts struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// StatusSnapshot is the full state view served by /api/status.
type StatusSnapshot struct {
	Connections int                 `json:"connections"`
	Rooms       map[string][]string `json:"rooms"`
	Users       []PresenceRecord    `json:"users"`
	Metrics     MetricsSnapshot     `json:"metrics"`
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evJoinRoom
	evLeaveRoom
	evMessage
	evTyping
	evPing
	evGetMetrics
	evGetUsers
	evNotify
	evCounts
	evSnapshot
)

func (k eventKind) String() string {
	switch k {
	case evConnect:
		return "connect"
	case evDisconnect:
		return "disconnect"
	case evJoinRoom:
		return "join_room"
	case evLeaveRoom:
		return "leave_room"
	case evMessage:
		return "message"
	case evTyping:
		return "typing"
	case evPing:
		return "ping"
	case evGetMetrics:
		return "get_metrics"
	case evGetUsers:
		return "get_online_users"
	case evNotify:
		return "notify"
	case evCounts:
		return "counts"
	case evSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// event is the single message type consumed by the hub loop. Only the
// fields relevant to the kind are set.
type event struct {
	kind     eventKind
	client   *Client
	roomID   string
	isTyping bool
	reason   string
	payload  map[string]any
	notif    *Notification

	countsReply   chan Counts
	snapshotReply chan StatusSnapshot
}
