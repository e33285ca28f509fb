package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(NewMetrics(), nil, logger)
	go h.Run()
	t.Cleanup(func() {
		h.Stop()
		h.Wait()
	})
	return h
}

// newTestClient builds a client with no underlying connection; hub tests
// read frames straight off the send channel.
func newTestClient() *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		name: "user-" + id[:8],
		send: make(chan []byte, 256),
	}
}

func connect(h *Hub, c *Client) {
	h.post(event{kind: evConnect, client: c})
}

func waitFor(t *testing.T, c *Client, eventName string) Frame {
	t.Helper()
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				t.Fatalf("send channel closed while waiting for %q", eventName)
			}
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Event == eventName {
				return f
			}
		case <-deadline.C:
			t.Fatalf("timeout waiting for %q", eventName)
		}
	}
}

// eventsUntilPong sends a ping for c and returns the names of every frame
// delivered before the pong. Hub events are processed in order, so this
// gives a consistent cut of everything queued so far.
func eventsUntilPong(t *testing.T, h *Hub, c *Client) []string {
	t.Helper()
	h.post(event{kind: evPing, client: c})
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	var names []string
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				t.Fatal("send channel closed while draining")
			}
			var f Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Event == EventPong {
				return names
			}
			names = append(names, f.Event)
		case <-deadline.C:
			t.Fatal("timeout draining to pong")
		}
	}
}

func decodePresence(t *testing.T, f Frame) []PresenceRecord {
	t.Helper()
	var recs []PresenceRecord
	require.NoError(t, json.Unmarshal(f.Data, &recs))
	return recs
}

func decodeMessageData(t *testing.T, f Frame) map[string]any {
	t.Helper()
	var p struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p.Data
}

func TestHub_ConnectSendsSnapshotAndPresence(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	connect(h, a)

	metrics := waitFor(t, a, EventMetrics)
	var snap MetricsSnapshot
	require.NoError(t, json.Unmarshal(metrics.Data, &snap))
	require.Equal(t, 1, snap.Connections)

	presence := decodePresence(t, waitFor(t, a, EventOnlineUsers))
	require.Len(t, presence, 1)
	require.Equal(t, a.id, presence[0].ID)
	require.True(t, presence[0].IsOnline)

	b := newTestClient()
	connect(h, b)

	// Both see the updated list.
	require.Len(t, decodePresence(t, waitFor(t, a, EventOnlineUsers)), 2)
	require.Len(t, decodePresence(t, waitFor(t, b, EventOnlineUsers)), 2)
}

func TestHub_JoinLeavePrunesRoom(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	connect(h, a)

	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evLeaveRoom, client: a, roomID: "lobby"})

	snap := h.Snapshot()
	require.Empty(t, snap.Rooms)
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)

	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: b, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: b, roomID: "lobby"})

	snap := h.Snapshot()
	require.Len(t, snap.Rooms["lobby"], 2)

	// The duplicate join produced no second user_joined for a.
	names := eventsUntilPong(t, h, a)
	joined := 0
	for _, n := range names {
		if n == EventUserJoined {
			joined++
		}
	}
	require.Equal(t, 1, joined)
}

func TestHub_MessageRelayInjectsIdentity(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)
	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: b, roomID: "lobby"})

	// Client-supplied identity fields must be overwritten.
	h.post(event{kind: evMessage, client: a, payload: map[string]any{
		"roomId": "lobby",
		"text":   "hi",
		"userId": "spoofed",
	}})

	data := decodeMessageData(t, waitFor(t, b, EventMessage))
	require.Equal(t, a.id, data["userId"])
	require.Equal(t, a.name, data["userName"])
	require.Equal(t, "hi", data["text"])

	// The sender never gets its own message back.
	for _, n := range eventsUntilPong(t, h, a) {
		require.NotEqual(t, EventMessage, n)
	}
}

func TestHub_MessageWithoutRoomBroadcasts(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)

	h.post(event{kind: evMessage, client: a, payload: map[string]any{"text": "all"}})

	data := decodeMessageData(t, waitFor(t, b, EventMessage))
	require.Equal(t, "all", data["text"])
	for _, n := range eventsUntilPong(t, h, a) {
		require.NotEqual(t, EventMessage, n)
	}
}

func TestHub_TypingRelaysToRoomOnly(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	c := newTestClient()
	connect(h, a)
	connect(h, b)
	connect(h, c)
	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: b, roomID: "lobby"})

	h.post(event{kind: evTyping, client: a, roomID: "lobby", isTyping: true})

	f := waitFor(t, b, EventTyping)
	var p struct {
		RoomID   string `json:"roomId"`
		IsTyping bool   `json:"isTyping"`
		UserID   string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &p))
	require.Equal(t, "lobby", p.RoomID)
	require.True(t, p.IsTyping)
	require.Equal(t, a.id, p.UserID)

	// c is not in the room and sees nothing.
	for _, n := range eventsUntilPong(t, h, c) {
		require.NotEqual(t, EventTyping, n)
	}
}

func TestHub_DisconnectCleansUpEverywhere(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)
	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: b, roomID: "lobby"})

	// Settle so the disconnect's frames are the only ones left to count.
	eventsUntilPong(t, h, b)

	h.post(event{kind: evDisconnect, client: a, reason: "transport close"})

	names := eventsUntilPong(t, h, b)
	presenceBroadcasts := 0
	sawUserLeft := false
	for _, n := range names {
		if n == EventOnlineUsers {
			presenceBroadcasts++
		}
		if n == EventUserLeft {
			sawUserLeft = true
		}
	}
	require.Equal(t, 1, presenceBroadcasts, "exactly one presence broadcast per disconnect")
	require.True(t, sawUserLeft)

	snap := h.Snapshot()
	require.Len(t, snap.Users, 1)
	require.Equal(t, b.id, snap.Users[0].ID)
	require.Equal(t, []string{b.id}, snap.Rooms["lobby"])

	// A second disconnect for the same client is ignored.
	h.post(event{kind: evDisconnect, client: a, reason: "transport close"})
	require.Equal(t, 1, h.Counts().Connections)
}

func TestHub_DisconnectPresenceExcludesDeparted(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)
	eventsUntilPong(t, h, b)

	h.post(event{kind: evDisconnect, client: a, reason: "server shutdown"})

	recs := decodePresence(t, waitFor(t, b, EventOnlineUsers))
	require.Len(t, recs, 1)
	require.Equal(t, b.id, recs[0].ID)
}

func TestHub_NotifyRoutesToRoom(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)
	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})

	n := Notification{ID: "n-1", Type: "info", Message: "hello", RoomID: "lobby", Timestamp: time.Now()}
	h.Notify(n)

	data := decodeMessageData(t, waitFor(t, a, EventMessage))
	require.Equal(t, "n-1", data["id"])
	require.Equal(t, "hello", data["message"])

	// b is outside the room.
	for _, name := range eventsUntilPong(t, h, b) {
		require.NotEqual(t, EventMessage, name)
	}
}

func TestHub_GetUsersRepliesOnlyToRequester(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	b := newTestClient()
	connect(h, a)
	connect(h, b)
	eventsUntilPong(t, h, a)
	eventsUntilPong(t, h, b)

	h.post(event{kind: evGetUsers, client: a})

	recs := decodePresence(t, waitFor(t, a, EventOnlineUsers))
	require.Len(t, recs, 2)

	for _, name := range eventsUntilPong(t, h, b) {
		require.NotEqual(t, EventOnlineUsers, name)
	}
}

func TestHub_CountsMatchDirectories(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient()
	connect(h, a)
	h.post(event{kind: evJoinRoom, client: a, roomID: "lobby"})
	h.post(event{kind: evJoinRoom, client: a, roomID: "dev"})

	counts := h.Counts()
	require.Equal(t, 1, counts.Connections)
	require.Equal(t, 2, counts.Rooms)
}
