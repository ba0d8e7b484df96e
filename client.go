package iomux

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"
)

var errWouldBlock = errors.New("write would block")

// client is one accepted connection, used as a write-only sink.
type client struct {
	conn     net.Conn
	remote   string
	blocking bool
}

func newClient(conn net.Conn, blocking bool) *client {
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &client{conn: conn, remote: remote, blocking: blocking}
}

// write sends p to the client. A nil error means the client is still
// considered writable, which in non-blocking mode includes the case
// where some or all of p was dropped.
func (c *client) write(p []byte) error {
	if c.blocking {
		_, err := c.conn.Write(p)
		return err
	}

	n, err := writeNonblocking(c.conn, p)
	if errors.Is(err, errWouldBlock) {
		logger.Debug("client would block",
			slog.String("remote", c.remote),
			slog.Int("written", n),
			slog.Int("size", len(p)))
		return nil
	}
	return err
}

func (c *client) close() error {
	return c.conn.Close()
}

// closeWrite sends end-of-stream while leaving the read side open. It
// reports false for connections that cannot be half-closed.
func (c *client) closeWrite() bool {
	hc, ok := c.conn.(interface{ CloseWrite() error })
	return ok && hc.CloseWrite() == nil
}

// drain discards whatever the client sends until it closes its side or
// d elapses. Closing with unread input would reset the connection.
func (c *client) drain(d time.Duration) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return
	}
	n, _ := io.Copy(io.Discard, c.conn)
	if n > 0 {
		logger.Debug("discarded client input", slog.String("remote", c.remote), slog.Int64("size", n))
	}
}

// writeNonblocking writes as much of p as the connection accepts without
// waiting and reports errWouldBlock if anything is left over.
func writeNonblocking(conn net.Conn, p []byte) (int, error) {
	if sc, ok := conn.(syscall.Conn); ok {
		if n, ok, err := writeRaw(sc, p); ok {
			return n, err
		}
	}
	return writeWithin(conn, p, nonblockingWriteWindow)
}

func writeWithin(conn net.Conn, p []byte, d time.Duration) (int, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		return 0, err
	}
	n, err := conn.Write(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, errWouldBlock
	}
	return n, err
}
