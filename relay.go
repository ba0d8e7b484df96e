package iomux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/juju/ratelimit"
)

// Relay copies the output of a Source to every client accepted on its
// listener.
type Relay struct {
	listener net.Listener
	opts     *Options
	clients  *registry
	bucket   *ratelimit.Bucket

	wg sync.WaitGroup
}

// Listen binds addr and returns a relay serving on it.
func Listen(addr string, opts *Options) (*Relay, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to bind %s: %w", addr, err)
	}

	r, err := NewRelay(l, opts)
	if err != nil {
		l.Close()
		return nil, err
	}
	return r, nil
}

// NewRelay returns a relay accepting clients on l. The relay owns l
// from then on.
func NewRelay(l net.Listener, opts *Options) (*Relay, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	r := &Relay{
		listener: l,
		opts:     o,
		clients:  newRegistry(o.Blocking, newFanout(o.Parallel, o.Workers)),
	}
	if o.RateLimit > 0 {
		r.bucket = ratelimit.NewBucketWithRate(float64(o.RateLimit), max(o.RateLimit, int64(o.ChunkSize)))
	}
	return r, nil
}

// Addr returns the address the relay listens on.
func (r *Relay) Addr() net.Addr {
	return r.listener.Addr()
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	return r.clients.len()
}

// Run relays until the source is done or ctx is cancelled, then closes
// the listener and every client. It must be called once.
//
// A standard input relay starts reading right away and returns at the
// end of its input. A command relay spawns the command once a client is
// connected, relays its output, hangs up the clients when the output
// ends, and spawns it again for the next client; it returns only on
// error, on cancellation, or under EmptyStop.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready *readiness
	if r.opts.Source.OnDemand() {
		ready = newReadiness()
	}

	acc := &acceptor{listener: r.listener, clients: r.clients, ready: ready}
	r.wg.Go(acc.serve)

	if r.opts.Announce != "" {
		r.wg.Go(func() {
			r.announce(ctx)
		})
	}

	logger.Info("relay started",
		slog.String("addr", r.Addr().String()),
		slog.String("mode", r.opts.Source.Mode()),
		slog.Bool("blocking", r.opts.Blocking),
		slog.Bool("parallel", r.opts.Parallel),
		slog.String("on_empty", r.opts.OnEmpty.String()))

	// The producer may sit in a read of standard input that nothing can
	// interrupt, so it is not waited for once ctx is done.
	done := make(chan error, 1)
	go func() {
		done <- r.produce(ctx, ready)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	cancel()
	r.listener.Close()
	r.clients.interrupt()
	r.wg.Wait()
	if n := r.clients.closeAll(); n > 0 {
		logger.Debug("clients closed", slog.Int("clients", n))
	}
	r.clients.waitHangUps()
	return err
}

// produce runs production cycles. Without a readiness signal there is a
// single cycle, started at once.
func (r *Relay) produce(ctx context.Context, ready *readiness) error {
	if ready == nil {
		_, err := r.cycle(ctx)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready.wait():
		}

		if r.clients.isEmpty() {
			logger.Debug("clients left before the source started")
			continue
		}

		end, err := r.cycle(ctx)
		if err != nil {
			return err
		}

		switch end {
		case endOfStream:
			n := r.clients.closeAll()
			logger.Info("stream ended, clients hung up", slog.Int("clients", n))
		case endNoClients:
			if r.opts.OnEmpty == EmptyStop {
				logger.Info("no clients left, stopping")
				return nil
			}
			logger.Info("no clients left, waiting for the next one")
		}
	}
}

type cycleEnd int

const (
	endOfStream cycleEnd = iota
	endNoClients
	endFailed
)

// cycle starts the source, pumps it and releases it.
func (r *Relay) cycle(ctx context.Context) (cycleEnd, error) {
	stream, err := r.opts.Source.Start(ctx)
	if err != nil {
		return endFailed, err
	}

	end, err := r.pump(ctx, stream)
	if end != endOfStream {
		stream.Close()
	}
	if werr := stream.Wait(); werr != nil {
		logger.Warn("source did not exit cleanly", slog.Any("error", werr))
	}
	return end, err
}

// pump reads src in chunks and broadcasts each of them until the end of
// src, a read error, or the clients going away.
func (r *Relay) pump(ctx context.Context, src io.Reader) (cycleEnd, error) {
	if r.bucket != nil {
		src = ratelimit.Reader(src, r.bucket)
	}

	onDemand := r.opts.Source.OnDemand()
	buf := make([]byte, r.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return endFailed, err
		}

		n, err := src.Read(buf)
		if n > 0 {
			before, after := r.clients.broadcast(buf[:n])
			if after == 0 && (onDemand || before > 0 && r.opts.OnEmpty == EmptyStop) {
				if before > 0 {
					logger.Debug("last client gone", slog.Int("dropped", before))
				}
				return endNoClients, nil
			}
		}

		if errors.Is(err, io.EOF) {
			return endOfStream, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return endFailed, ctx.Err()
			}
			logger.Error("source read failed", slog.Any("error", err))
			return endFailed, fmt.Errorf("read source: %w", err)
		}
	}
}
