package gateway

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is the real-time gateway. A single goroutine (Run) owns the presence
// and room directories and the id -> client map, so handlers never race on
// them and no locks are needed.
type Hub struct {
	events  chan event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *slog.Logger
	metrics *Metrics
	start   time.Time

	upgrader websocket.Upgrader

	// Owned by the Run goroutine. Never touch from outside.
	presence *Presence
	rooms    *Rooms
	conns    map[string]*Client
}

func NewHub(metrics *Metrics, allowedOrigins []string, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		events:  make(chan event, 128),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		metrics: metrics,
		start:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		presence: NewPresence(),
		rooms:    NewRooms(),
		conns:    make(map[string]*Client),
	}
}

func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Stop signals the Run loop to exit.
func (h *Hub) Stop() {
	close(h.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (h *Hub) Wait() {
	<-h.doneCh
}

func (h *Hub) Run() {
	defer close(h.doneCh)
	defer h.closeAll()

	for {
		select {
		case ev := <-h.events:
			start := time.Now()
			h.dispatch(ev)
			kind := ev.kind.String()
			h.metrics.EventsTotal.WithLabelValues(kind).Inc()
			h.metrics.EventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case evConnect:
		h.handleConnect(ev.client)
	case evDisconnect:
		h.handleDisconnect(ev.client, ev.reason)
	case evJoinRoom:
		h.handleJoin(ev.client, ev.roomID)
	case evLeaveRoom:
		h.handleLeave(ev.client, ev.roomID)
	case evMessage:
		h.handleMessage(ev.client, ev.payload)
	case evTyping:
		h.handleTyping(ev.client, ev.roomID, ev.isTyping)
	case evPing:
		h.send(ev.client, EventPong, nil)
	case evGetMetrics:
		h.send(ev.client, EventMetrics, h.snapshot())
	case evGetUsers:
		h.send(ev.client, EventOnlineUsers, h.presenceList())
	case evNotify:
		h.handleNotify(ev.notif)
	case evCounts:
		ev.countsReply <- Counts{Connections: h.presence.Len(), Rooms: h.rooms.Len()}
	case evSnapshot:
		ev.snapshotReply <- StatusSnapshot{
			Connections: h.presence.Len(),
			Rooms:       h.rooms.Snapshot(),
			Users:       h.presenceList(),
			Metrics:     h.snapshot(),
		}
	}
}

// post hands an event to the loop without blocking forever on a stopped hub.
func (h *Hub) post(ev event) {
	select {
	case h.events <- ev:
	case <-h.stopCh:
	}
}

// Counts returns the live directory sizes. Safe from any goroutine.
func (h *Hub) Counts() Counts {
	reply := make(chan Counts, 1)
	select {
	case h.events <- event{kind: evCounts, countsReply: reply}:
	case <-h.stopCh:
		return Counts{}
	}
	select {
	case c := <-reply:
		return c
	case <-h.stopCh:
		return Counts{}
	}
}

// Snapshot returns the full state view for the status endpoint.
func (h *Hub) Snapshot() StatusSnapshot {
	reply := make(chan StatusSnapshot, 1)
	select {
	case h.events <- event{kind: evSnapshot, snapshotReply: reply}:
	case <-h.stopCh:
		return StatusSnapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-h.stopCh:
		return StatusSnapshot{}
	}
}

// Notify routes a server-originated notification to a room or to everyone.
func (h *Hub) Notify(n Notification) {
	h.post(event{kind: evNotify, notif: &n})
}

// ServeWS upgrades an HTTP request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(conn)
	h.logger.Info("client connected", "id", c.id, "remote", conn.RemoteAddr().String())

	// Register before the read pump starts so the connect event is the
	// first this client contributes to the loop.
	h.post(event{kind: evConnect, client: c})
	go c.writePump(h.logger)
	go c.readPump(h)
}

func (h *Hub) handleConnect(c *Client) {
	h.conns[c.id] = c
	h.presence.Register(c.id, c.name)
	h.metrics.ConnectionsTotal.Inc()
	h.metrics.ConnectedClients.Set(float64(h.presence.Len()))

	h.send(c, EventMetrics, h.snapshot())
	h.broadcast(EventOnlineUsers, h.presenceList(), nil)
}

func (h *Hub) handleDisconnect(c *Client, reason string) {
	if _, ok := h.conns[c.id]; !ok {
		return
	}

	// Policy: mark offline for the last-seen stamp, then remove right
	// away. Presence broadcasts only ever carry live connections.
	rec := h.presence.MarkOffline(c.id)
	h.logger.Info("client disconnected", "id", c.id, "reason", reason, "lastSeen", rec.LastSeen)

	h.presence.Remove(c.id)
	delete(h.conns, c.id)
	close(c.send)

	affected := h.rooms.LeaveAll(c.id)

	h.metrics.ConnectedClients.Set(float64(h.presence.Len()))
	h.metrics.ActiveRooms.Set(float64(h.rooms.Len()))

	h.broadcast(EventOnlineUsers, h.presenceList(), nil)
	for _, roomID := range affected {
		h.toRoom(roomID, EventUserLeft, c.id, "")
	}
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	if !h.rooms.Join(roomID, c.id) {
		// Already a member; joining twice changes nothing.
		return
	}
	h.metrics.ActiveRooms.Set(float64(h.rooms.Len()))
	h.toRoom(roomID, EventUserJoined, PresenceRecord{
		ID:       c.id,
		Name:     c.name,
		IsOnline: true,
	}, c.id)
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	if !h.rooms.Leave(roomID, c.id) {
		return
	}
	h.metrics.ActiveRooms.Set(float64(h.rooms.Len()))
	h.toRoom(roomID, EventUserLeft, c.id, "")
}

func (h *Hub) handleMessage(c *Client, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}
	// The server is the source of truth for identity; client-supplied
	// fields are overwritten.
	payload["userId"] = c.id
	payload["userName"] = c.name
	h.metrics.MessagesTotal.WithLabelValues("in").Inc()

	roomID, _ := payload["roomId"].(string)
	body := map[string]any{"data": payload}
	if roomID == "" {
		h.broadcast(EventMessage, body, c)
		return
	}
	h.toRoom(roomID, EventMessage, body, c.id)
}

func (h *Hub) handleTyping(c *Client, roomID string, isTyping bool) {
	if roomID == "" {
		return
	}
	h.toRoom(roomID, EventTyping, map[string]any{
		"roomId":   roomID,
		"isTyping": isTyping,
		"userId":   c.id,
		"userName": c.name,
	}, c.id)
}

func (h *Hub) handleNotify(n *Notification) {
	body := map[string]any{"data": n}
	if n.RoomID == "" {
		h.broadcast(EventMessage, body, nil)
		return
	}
	h.toRoom(n.RoomID, EventMessage, body, "")
}

func (h *Hub) presenceList() []PresenceRecord {
	records := h.presence.ListAll()
	out := make([]PresenceRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, PresenceRecord{
			ID:       rec.ID,
			Name:     rec.Name,
			IsOnline: rec.Online,
			LastSeen: rec.LastSeen,
		})
	}
	return out
}

func (h *Hub) snapshot() MetricsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(h.start).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		Connections:    h.presence.Len(),
		Rooms:          h.rooms.Len(),
		Timestamp:      time.Now(),
	}
}

// send encodes and queues one frame for one client.
func (h *Hub) send(c *Client, eventName string, data any) {
	frame, err := encodeFrame(eventName, data)
	if err != nil {
		h.logger.Error("encode frame", "event", eventName, "error", err)
		return
	}
	h.deliver(c, frame)
}

// broadcast fans a frame out to every connection, optionally excluding one.
func (h *Hub) broadcast(eventName string, data any, except *Client) {
	frame, err := encodeFrame(eventName, data)
	if err != nil {
		h.logger.Error("encode frame", "event", eventName, "error", err)
		return
	}
	for _, c := range h.conns {
		if except != nil && c.id == except.id {
			continue
		}
		h.deliver(c, frame)
	}
}

// toRoom fans a frame out to the members of one room, optionally excluding
// the connection named by exceptID.
func (h *Hub) toRoom(roomID, eventName string, data any, exceptID string) {
	members := h.rooms.MembersOf(roomID)
	if len(members) == 0 {
		return
	}
	frame, err := encodeFrame(eventName, data)
	if err != nil {
		h.logger.Error("encode frame", "event", eventName, "error", err)
		return
	}
	for _, id := range members {
		if id == exceptID {
			continue
		}
		if c, ok := h.conns[id]; ok {
			h.deliver(c, frame)
		}
	}
}

func (h *Hub) deliver(c *Client, frame []byte) {
	if c.trySend(frame) {
		h.metrics.MessagesTotal.WithLabelValues("out").Inc()
	} else {
		h.metrics.DroppedMessages.Inc()
	}
}

// closeAll releases every client when the loop shuts down.
func (h *Hub) closeAll() {
	for id, c := range h.conns {
		close(c.send)
		delete(h.conns, id)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
