package iomux

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// registry holds the connected clients. Every mutation and every
// broadcast happens under mu, so a client is either part of a whole
// broadcast pass or absent from it.
type registry struct {
	mu       sync.Mutex
	clients  []*client
	blocking bool
	fanout   fanout

	// live mirrors clients under its own lock, so that interrupt can
	// reach connections while a stuck broadcast holds mu.
	liveMu sync.Mutex
	live   map[*client]struct{}

	hangups sync.WaitGroup
}

func newRegistry(blocking bool, f fanout) *registry {
	return &registry{
		blocking: blocking,
		fanout:   f,
		live:     make(map[*client]struct{}),
	}
}

// add registers conn and reports whether the registry was empty right
// before. The caller fires the readiness signal on true, which makes
// the signal fire exactly once per empty to non-empty transition.
func (r *registry) add(conn net.Conn) (wasEmpty bool) {
	c := newClient(conn, r.blocking)

	r.mu.Lock()
	defer r.mu.Unlock()

	wasEmpty = len(r.clients) == 0
	r.clients = append(r.clients, c)
	r.track(c, true)
	return wasEmpty
}

// Broadcast writes p to every client, drops the ones that failed and
// reports whether no client is left.
func (r *registry) Broadcast(p []byte) (empty bool) {
	_, after := r.broadcast(p)
	return after == 0
}

// broadcast is Broadcast returning the client count before and after
// pruning.
func (r *registry) broadcast(p []byte) (before, after int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before = len(r.clients)
	if before == 0 || len(p) == 0 {
		return before, before
	}

	errs := r.fanout.writeAll(r.clients, p)

	kept := r.clients[:0]
	for i, c := range r.clients {
		if errs[i] == nil {
			kept = append(kept, c)
			continue
		}
		if isExpectedCloseError(errs[i]) {
			logger.Debug("client disconnected", slog.String("remote", c.remote), slog.Any("error", errs[i]))
		} else {
			logger.Warn("client write failed", slog.String("remote", c.remote), slog.Any("error", errs[i]))
		}
		r.track(c, false)
		c.close()
	}
	clear(r.clients[len(kept):])
	r.clients = kept

	return before, len(r.clients)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *registry) isEmpty() bool {
	return r.len() == 0
}

// closeAll hangs up every client and empties the registry.
func (r *registry) closeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.clients)
	for _, c := range r.clients {
		r.track(c, false)
		r.hangUp(c)
	}
	clear(r.clients)
	r.clients = r.clients[:0]
	return n
}

// hangUp ends the stream for c. A TCP client is sent end-of-stream
// first and its input is drained in the background before the close.
func (r *registry) hangUp(c *client) {
	if !c.closeWrite() {
		c.close()
		return
	}
	r.hangups.Go(func() {
		c.drain(hangUpTimeout)
		c.close()
	})
}

// waitHangUps waits until every hung up client is closed.
func (r *registry) waitHangUps() {
	r.hangups.Wait()
}

// interrupt fails every pending and future write without waiting for
// mu. A broadcast blocked on a client that does not read returns; the
// registry itself is left for closeAll to empty.
func (r *registry) interrupt() {
	r.liveMu.Lock()
	defer r.liveMu.Unlock()

	now := time.Now()
	for c := range r.live {
		if err := c.conn.SetWriteDeadline(now); err != nil {
			c.close()
		}
	}
}

func (r *registry) track(c *client, live bool) {
	r.liveMu.Lock()
	defer r.liveMu.Unlock()

	if live {
		r.live[c] = struct{}{}
	} else {
		delete(r.live, c)
	}
}
