package announce

import (
	"log/slog"
	"net"
	"sync"

	"github.com/miekg/dns"
)

// Responder answers mDNS queries about one service until closed.
type Responder struct {
	conn *mdnsConn
	svc  Service

	wg sync.WaitGroup
}

// NewResponder binds the mDNS port, announces svc once and starts
// answering queries for it.
func NewResponder(svc Service, opts Options) (*Responder, error) {
	opts.BindTo = BindMDNSPort

	c, err := newConn(opts)
	if err != nil {
		return nil, err
	}

	r := &Responder{conn: c, svc: svc}
	r.wg.Go(r.serve)

	if err := c.send(svc.announcement(DefaultTTL), nil); err != nil {
		logger.Debug("failed to announce service", slog.String("instance", svc.InstanceName()), slog.Any("error", err))
	}

	return r, nil
}

// Close sends a goodbye for the service and releases the sockets.
func (r *Responder) Close() error {
	if err := r.conn.send(r.svc.announcement(0), nil); err != nil {
		logger.Debug("failed to send goodbye", slog.String("instance", r.svc.InstanceName()), slog.Any("error", err))
	}
	err := r.conn.Close()
	r.wg.Wait()
	return err
}

func (r *Responder) serve() {
	for pkt := range r.conn.packets() {
		if pkt.msg.Response || pkt.msg.Opcode != dns.OpcodeQuery {
			continue
		}

		resp := r.svc.answer(pkt.msg)
		if resp == nil {
			continue
		}

		var to *net.UDPAddr
		if wantsUnicast(pkt.msg, pkt.from) {
			resp.Id = pkt.msg.Id
			resp.Question = pkt.msg.Question
			to = pkt.from
		}
		if err := r.conn.send(resp, to); err != nil {
			logger.Debug("failed to answer query", slog.String("from", pkt.from.String()), slog.Any("error", err))
		}
	}
}
