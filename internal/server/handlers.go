// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the read-only JSON API over chat state.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat/internal/chat"
)

// Handlers carries the dependencies of the HTTP endpoints.
type Handlers struct {
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *slog.Logger
	started  time.Time
}

// NewHandlers builds the HTTP endpoints for hub, enforcing the configured
// origin allow-list on WebSocket upgrades.
func NewHandlers(hub *Hub, log *slog.Logger) *Handlers {
	h := &Handlers{
		hub:     hub,
		origins: newOriginPolicy(hub.cfg.AllowedOrigins, log),
		log:     log,
		started: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}
	return h
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, creates a new Client instance, and hands it to the hub.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

type statusResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	chat.Stats
}

// Status reports engine counters as JSON.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Stats:  h.hub.core.Stats(),
	})
}

// OnlineUsers lists the present users.
func (h *Handlers) OnlineUsers(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.core.OnlineUsers())
}

// Rooms lists the known rooms in creation order.
func (h *Handlers) Rooms(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.core.Rooms())
}

// Messages returns a room's history window. The room defaults to the
// configured default room and limit to the configured window size.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = h.hub.core.Config().DefaultRoom
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := h.hub.core.History(room, limit)
	if err != nil {
		h.chatError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msgs)
}

// Typing lists who is typing in the room named by the path.
func (h *Handlers) Typing(w http.ResponseWriter, r *http.Request) {
	typing, err := h.hub.core.TypingIn(chi.URLParam(r, "room"))
	if err != nil {
		h.chatError(w, err)
		return
	}
	if typing == nil {
		typing = []chat.Presence{}
	}
	h.writeJSON(w, http.StatusOK, typing)
}

func (h *Handlers) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("API request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("Error writing JSON response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
