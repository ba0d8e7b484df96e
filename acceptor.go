package iomux

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

type acceptor struct {
	listener net.Listener
	clients  *registry
	ready    *readiness // nil when nothing waits for clients
}

// serve accepts connections until the listener is closed. Errors on a
// single accept are logged and retried with a growing delay.
func (a *acceptor) serve() {
	var delay time.Duration
	for {
		conn, err := a.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			if delay == 0 {
				delay = acceptBackoffMin
			} else {
				delay = min(2*delay, acceptBackoffMax)
			}
			logger.Warn("accept failed", slog.Any("error", err), slog.Duration("retry", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		first := a.clients.add(conn)
		logger.Info("new client",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.Int("clients", a.clients.len()))

		if first && a.ready != nil {
			a.ready.fire()
		}
	}
}
