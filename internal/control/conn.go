package control

import (
	"io"
	"net"
	"time"
)

// DefaultWriteTimeout bounds a single telemetry write to one client.
const DefaultWriteTimeout = 50 * time.Millisecond

// readChunkSize is the largest chunk a reader forwards to the hub.
const readChunkSize = 512

// Conn is a client connection served by the hub.
type Conn interface {
	// ReadChunk blocks for the next piece of input. The returned slice is
	// owned by the caller.
	ReadChunk() ([]byte, error)
	// Write sends p in full or returns an error.
	Write(p []byte) error
	Close() error
	RemoteAddr() string
}

// NetConn adapts a stream connection to Conn.
type NetConn struct {
	c       net.Conn
	timeout time.Duration
	buf     []byte
}

// NewNetConn wraps c. Nagle's algorithm is disabled for TCP connections.
func NewNetConn(c net.Conn, writeTimeout time.Duration) *NetConn {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &NetConn{c: c, timeout: writeTimeout, buf: make([]byte, readChunkSize)}
}

// ReadChunk reads whatever input is available.
func (n *NetConn) ReadChunk() ([]byte, error) {
	k, err := n.c.Read(n.buf)
	if k > 0 {
		chunk := make([]byte, k)
		copy(chunk, n.buf[:k])
		return chunk, nil
	}
	return nil, err
}

// Write sends p within the write timeout.
func (n *NetConn) Write(p []byte) error {
	if err := n.c.SetWriteDeadline(time.Now().Add(n.timeout)); err != nil {
		return err
	}
	k, err := n.c.Write(p)
	if err == nil && k < len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// Close half-closes a TCP connection before closing it.
func (n *NetConn) Close() error {
	if tc, ok := n.c.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return n.c.Close()
}

// RemoteAddr returns the peer address.
func (n *NetConn) RemoteAddr() string {
	return n.c.RemoteAddr().String()
}
