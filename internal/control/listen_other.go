//go:build !linux

package control

import (
	"context"
	"net"
)

// Listen opens a TCP listener on addr. The backlog is left to the platform.
func Listen(addr string, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", addr)
}
