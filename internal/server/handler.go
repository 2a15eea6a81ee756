// Package server provides the HTTP and WebSocket endpoints of the recorder.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/control"
	"github.com/oszuidwest/zwfm-autorecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

// defaultEventLimit is the number of events /events returns without a limit.
const defaultEventLimit = 50

// Hub is the part of the control hub the HTTP endpoints use.
type Hub interface {
	Serve(conn control.Conn) error
	Latest() types.Status
	Connections() int
}

// Handler serves the recorder's HTTP endpoints.
type Handler struct {
	hub          Hub
	version      func() types.VersionInfo
	eventLogPath string
	writeTimeout time.Duration
}

// NewHandler returns a Handler. version may be nil and eventLogPath empty.
func NewHandler(hub Hub, version func() types.VersionInfo, eventLogPath string, writeTimeout time.Duration) *Handler {
	return &Handler{
		hub:          hub,
		version:      version,
		eventLogPath: eventLogPath,
		writeTimeout: writeTimeout,
	}
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleWebSocket)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /events", h.handleEvents)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleWebSocket attaches the upgraded connection to the control hub.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	conn := NewWSConn(c, h.writeTimeout)
	if err := h.hub.Serve(conn); err != nil {
		slog.Warn("WebSocket control connection refused", "remote", conn.RemoteAddr(), "error", err)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.hub.Latest()
	resp := types.StatusResponse{
		Mode:        st.Mode.String(),
		State:       st.State.String(),
		Status:      st,
		Connections: h.hub.Connections(),
	}
	if h.version != nil {
		resp.Version = h.version()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventLogPath == "" {
		writeError(w, http.StatusNotFound, errors.New("event log is disabled"))
		return
	}

	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := eventlog.ReadLast(h.eventLogPath, limit)
	if err != nil {
		slog.Error("failed to read event log", "path", h.eventLogPath, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to read event log"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
