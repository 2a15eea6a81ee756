// Package control implements the remote-control text protocol: a hub that owns
// every client connection, parses command lines into the analysis loop and
// broadcasts telemetry lines back out.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

// Protocol defaults.
const (
	DefaultPort           = 10123
	DefaultBacklog        = 10
	DefaultMaxConnections = 20
)

// Sentinel errors for hub operations.
var (
	// ErrHubFull is returned by Serve when the connection limit is reached.
	ErrHubFull = errors.New("too many control connections")
	// ErrHubClosed is returned by Serve after the hub has stopped.
	ErrHubClosed = errors.New("control hub stopped")
)

// HubConfig configures a Hub.
type HubConfig struct {
	MaxConnections int
	// Status delivers one snapshot per analysis tick. The hub stops when it closes.
	Status <-chan types.Status
	// Submit forwards a parsed command. An error is fatal to the hub.
	Submit func(types.Command) error
}

type eventKind uint8

const (
	eventAttach eventKind = iota
	eventData
	eventClosed
)

type event struct {
	kind  eventKind
	id    uint64
	conn  Conn
	data  []byte
	err   error
	reply chan uint64 // Attach result; 0 means rejected
}

type slot struct {
	occupied bool
	id       uint64
	conn     Conn
	remote   string
	parser   LineParser
}

// Hub multiplexes client connections. All connection state is owned by the
// goroutine executing Run; readers only forward events to it.
type Hub struct {
	cfg    HubConfig
	events chan event
	done   chan struct{}

	// Owned by Run.
	slots     []slot
	nextID    uint64
	telemetry *Telemetry

	mu     sync.RWMutex
	latest types.Status
	count  int
}

// NewHub creates a hub. Call Run to start it.
func NewHub(cfg *HubConfig) *Hub {
	c := *cfg
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	return &Hub{
		cfg:       c,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		slots:     make([]slot, c.MaxConnections),
		telemetry: NewTelemetry(),
		latest:    types.DefaultStatus,
	}
}

// Latest returns the most recent status snapshot.
func (h *Hub) Latest() types.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Run serves connections until ctx is cancelled, the status channel closes
// or a command cannot be submitted.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case st, ok := <-h.cfg.Status:
			if !ok {
				return nil
			}
			h.mu.Lock()
			h.latest = st
			h.mu.Unlock()
			if lines := h.telemetry.Update(st); len(lines) > 0 {
				h.broadcast(lines)
			}

		case ev := <-h.events:
			if err := h.handle(ev); err != nil {
				return err
			}
		}
	}
}

// Serve registers conn and forwards its input to the hub until the connection
// ends. It returns ErrHubFull if the connection was rejected.
func (h *Hub) Serve(conn Conn) error {
	reply := make(chan uint64, 1)
	if !h.send(event{kind: eventAttach, conn: conn, reply: reply}) {
		_ = conn.Close()
		return ErrHubClosed
	}

	var id uint64
	select {
	case id = <-reply:
	case <-h.done:
		_ = conn.Close()
		return ErrHubClosed
	}
	if id == 0 {
		return ErrHubFull
	}

	for {
		chunk, err := conn.ReadChunk()
		if err != nil {
			h.send(event{kind: eventClosed, id: id, err: err})
			return nil
		}
		if !h.send(event{kind: eventData, id: id, data: chunk}) {
			return nil
		}
	}
}

func (h *Hub) send(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ev event) error {
	switch ev.kind {
	case eventAttach:
		ev.reply <- h.attach(ev.conn)

	case eventData:
		s := h.lookup(ev.id)
		if s == nil {
			return nil
		}
		var submitErr error
		s.parser.Feed(ev.data, func(line []byte) bool {
			cmd, ok := ParseCommand(line)
			if !ok {
				slog.Warn("unrecognized command", "remote", s.remote, "line", string(line))
				return true
			}
			slog.Info("command received", "remote", s.remote, "command", cmd.String())
			if err := h.cfg.Submit(cmd); err != nil {
				submitErr = fmt.Errorf("submit command: %w", err)
				return false
			}
			return true
		})
		return submitErr

	case eventClosed:
		if s := h.lookup(ev.id); s != nil {
			slog.Info("control client disconnected", "remote", s.remote, "error", ev.err)
			h.release(s)
		}
	}
	return nil
}

// attach registers conn and sends it the current status. It returns the
// connection id, or 0 if the hub is full.
func (h *Hub) attach(conn Conn) uint64 {
	for i := range h.slots {
		s := &h.slots[i]
		if s.occupied {
			continue
		}
		h.nextID++
		*s = slot{
			occupied: true,
			id:       h.nextID,
			conn:     conn,
			remote:   conn.RemoteAddr(),
		}
		h.setCount(+1)
		slog.Info("control client connected", "remote", s.remote, "connections", h.Connections())

		if err := conn.Write(h.telemetry.Snapshot()); err != nil {
			slog.Warn("control client write failed", "remote", s.remote, "error", err)
			h.release(s)
		}
		return h.nextID
	}

	slog.Warn("control connection rejected", "remote", conn.RemoteAddr(), "max_connections", len(h.slots))
	_ = conn.Close()
	return 0
}

func (h *Hub) broadcast(lines []byte) {
	for i := range h.slots {
		s := &h.slots[i]
		if !s.occupied {
			continue
		}
		if err := s.conn.Write(lines); err != nil {
			slog.Warn("control client write failed", "remote", s.remote, "error", err)
			h.release(s)
		}
	}
}

func (h *Hub) lookup(id uint64) *slot {
	for i := range h.slots {
		if h.slots[i].occupied && h.slots[i].id == id {
			return &h.slots[i]
		}
	}
	return nil
}

func (h *Hub) release(s *slot) {
	if err := s.conn.Close(); err != nil {
		slog.Debug("control client close failed", "remote", s.remote, "error", err)
	}
	*s = slot{}
	h.setCount(-1)
}

func (h *Hub) closeAll() {
	for i := range h.slots {
		if h.slots[i].occupied {
			h.release(&h.slots[i])
		}
	}
}

func (h *Hub) setCount(delta int) {
	h.mu.Lock()
	h.count += delta
	h.mu.Unlock()
}
