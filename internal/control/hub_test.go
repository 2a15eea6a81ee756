package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

type hubHarness struct {
	t      *testing.T
	hub    *Hub
	status chan types.Status
	cancel context.CancelFunc
	runErr chan error

	mu       sync.Mutex
	commands []types.Command
	submit   error
}

func newHubHarness(t *testing.T, maxConns int) *hubHarness {
	t.Helper()
	h := &hubHarness{t: t, status: make(chan types.Status, 16), runErr: make(chan error, 1)}
	h.hub = NewHub(&HubConfig{
		MaxConnections: maxConns,
		Status:         h.status,
		Submit: func(cmd types.Command) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.commands = append(h.commands, cmd)
			return h.submit
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.hub.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

// client is the far end of a piped control connection.
type client struct {
	conn  net.Conn
	lines chan string
	serve chan error
}

// connect attaches a piped connection and starts reading its lines.
func (h *hubHarness) connect(read bool) *client {
	server, far := net.Pipe()
	c := &client{conn: far, lines: make(chan string, 64), serve: make(chan error, 1)}
	go func() { c.serve <- h.hub.Serve(NewNetConn(server, 200*time.Millisecond)) }()
	if read {
		go func() {
			defer close(c.lines)
			sc := bufio.NewScanner(far)
			for sc.Scan() {
				c.lines <- sc.Text()
			}
		}()
	}
	h.t.Cleanup(func() { _ = far.Close() })
	return c
}

func (c *client) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			t.Fatalf("connection closed, want %q", want)
		}
		if got != want {
			t.Fatalf("line = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// readSnapshot consumes the four lines sent on connect.
func (c *client) readSnapshot(t *testing.T) {
	t.Helper()
	c.expect(t, "level 0.000000")
	c.expect(t, "base_level 0.000000")
	c.expect(t, "mode auto")
	c.expect(t, "state initializing")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubSnapshotAndBroadcast(t *testing.T) {
	h := newHubHarness(t, 4)
	a := h.connect(true)
	b := h.connect(true)
	a.readSnapshot(t)
	b.readSnapshot(t)

	h.status <- types.Status{State: types.StateIdle, Baseline: 0.5}
	for _, c := range []*client{a, b} {
		c.expect(t, "base_level 0.500000")
		c.expect(t, "state idle")
	}
	waitFor(t, func() bool { return h.hub.Latest().State == types.StateIdle })
}

func TestHubForwardsCommands(t *testing.T) {
	h := newHubHarness(t, 4)
	c := h.connect(true)
	c.readSnapshot(t)

	if _, err := io.WriteString(c.conn, "record\r\nbogus\n  stop\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.commands) == 2
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.commands[0] != types.CommandRecord || h.commands[1] != types.CommandStop {
		t.Errorf("commands = %v", h.commands)
	}
}

func TestHubRejectsOverCapacity(t *testing.T) {
	const maxConns = 3
	h := newHubHarness(t, maxConns)
	for range maxConns {
		h.connect(true).readSnapshot(t)
	}

	extra := h.connect(true)
	select {
	case err := <-extra.serve:
		if !errors.Is(err, ErrHubFull) {
			t.Errorf("Serve = %v, want ErrHubFull", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("extra connection not rejected")
	}
	if _, ok := <-extra.lines; ok {
		t.Error("rejected connection received data")
	}
	if n := h.hub.Connections(); n != maxConns {
		t.Errorf("connections = %d, want %d", n, maxConns)
	}
}

func TestHubDropsOnlyFailedClient(t *testing.T) {
	h := newHubHarness(t, 4)
	good := h.connect(true)
	good.readSnapshot(t)

	stalled := h.connect(false)
	// Read the snapshot by hand, then stop reading.
	buf := make([]byte, 256)
	total := 0
	for total < len("level 0.000000\nbase_level 0.000000\nmode auto\nstate initializing\n") {
		n, err := stalled.conn.Read(buf)
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		total += n
	}
	waitFor(t, func() bool { return h.hub.Connections() == 2 })

	h.status <- types.Status{State: types.StateIdle}
	good.expect(t, "state idle")
	waitFor(t, func() bool { return h.hub.Connections() == 1 })

	h.status <- types.Status{State: types.StateRecording}
	good.expect(t, "state recording")
}

func TestHubDisconnectFreesSlot(t *testing.T) {
	h := newHubHarness(t, 1)
	c := h.connect(true)
	c.readSnapshot(t)
	_ = c.conn.Close()
	waitFor(t, func() bool { return h.hub.Connections() == 0 })

	h.connect(true).readSnapshot(t)
}

func TestHubStopsOnSubmitFailure(t *testing.T) {
	h := newHubHarness(t, 2)
	h.mu.Lock()
	h.submit = errors.New("queue full")
	h.mu.Unlock()
	c := h.connect(true)
	c.readSnapshot(t)

	if _, err := io.WriteString(c.conn, "stop\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case err := <-h.runErr:
		if err == nil {
			t.Error("Run = nil, want submit error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub kept running after submit failure")
	}
}

func TestHubStopsWhenStatusCloses(t *testing.T) {
	h := newHubHarness(t, 2)
	c := h.connect(true)
	c.readSnapshot(t)
	close(h.status)

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-c.lines; ok {
		t.Error("client still open after hub stopped")
	}
}

func TestListenAndAccept(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", DefaultBacklog)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h := newHubHarness(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	acceptErr := make(chan error, 1)
	go func() { acceptErr <- h.hub.Accept(ctx, ln, 0) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	sc := bufio.NewScanner(conn)
	if !sc.Scan() || sc.Text() != "level 0.000000" {
		t.Fatalf("first line = %q, err %v", sc.Text(), sc.Err())
	}

	cancel()
	if err := <-acceptErr; err != nil {
		t.Errorf("Accept = %v", err)
	}
}
