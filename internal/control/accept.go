package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// Accept hands every connection accepted on ln to the hub until ctx is
// cancelled or ln is closed.
func (h *Hub) Accept(ctx context.Context, ln net.Listener, writeTimeout time.Duration) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	slog.Info("control server listening", "addr", ln.Addr().String())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go func() {
			if err := h.Serve(NewNetConn(c, writeTimeout)); err != nil {
				slog.Debug("control connection ended", "remote", c.RemoteAddr().String(), "error", err)
			}
		}()
	}
}
