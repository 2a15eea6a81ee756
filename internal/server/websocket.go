package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-autorecorder/internal/control"
)

// maxFrameSize caps a single incoming WebSocket message.
const maxFrameSize = 4096

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()

	// Exact localhost matches
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	// Same-origin check (compare with request host)
	requestHost := r.Host
	// Strip port from request host for comparison
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	// Check private IP ranges using net.IP
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// WSConn adapts a WebSocket to a control connection. Every incoming message
// is treated as complete lines; a missing trailing newline is supplied.
// Telemetry goes out as one text message per broadcast.
type WSConn struct {
	c       *websocket.Conn
	timeout time.Duration
}

var _ control.Conn = (*WSConn)(nil)

// NewWSConn wraps an upgraded connection.
func NewWSConn(c *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = control.DefaultWriteTimeout
	}
	c.SetReadLimit(maxFrameSize)
	return &WSConn{c: c, timeout: writeTimeout}
}

// ReadChunk returns the next message.
func (w *WSConn) ReadChunk() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if n := len(data); n == 0 || (data[n-1] != '\n' && data[n-1] != '\r') {
		data = append(data, '\n')
	}
	return data, nil
}

// Write sends p as a text message within the write timeout.
func (w *WSConn) Write(p []byte) error {
	if err := w.c.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.TextMessage, p)
}

// Close sends a close frame and closes the connection.
func (w *WSConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.timeout))
	return w.c.Close()
}

// RemoteAddr returns the peer address.
func (w *WSConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}
