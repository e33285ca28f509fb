package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/roomcast/roomcast/internal/gateway"
)

// Server is the HTTP control surface: health, status, notifications and
// the metrics scrape endpoint, plus the websocket upgrade route.
type Server struct {
	hub    *gateway.Hub
	logger *slog.Logger
	start  time.Time
}

func New(hub *gateway.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger,
		start:  time.Now(),
	}
}

// Router builds the full route tree.
func (s *Server) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(allowedOrigins))
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/notify", s.handleNotify)
	r.Method(http.MethodGet, "/metrics", s.hub.Metrics().Handler())
	r.Get("/ws", s.hub.ServeWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := s.hub.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"connections":   counts.Connections,
		"rooms":         counts.Rooms,
		"uptimeSeconds": time.Since(s.start).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Snapshot())
}

type notifyRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "type and message are required")
		return
	}

	n := gateway.Notification{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Message:   req.Message,
		RoomID:    req.RoomID,
		Timestamp: time.Now(),
	}
	s.hub.Notify(n)
	s.logger.Info("notification sent", "id", n.ID, "type", n.Type, "room", n.RoomID)

	writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "id": n.ID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
