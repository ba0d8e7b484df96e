package announce

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/miekg/dns"
)

// packet is a received DNS message and where it came from.
type packet struct {
	msg  *dns.Msg
	from *net.UDPAddr
}

// mdnsConn exchanges DNS messages on the mDNS group. Datagrams that do
// not parse are dropped, and so are messages that arrive while the
// queue is full.
type mdnsConn struct {
	sock  *socket
	queue chan packet

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newConn(opts Options) (*mdnsConn, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	sock, err := newSocket(o)
	if err != nil {
		return nil, err
	}

	c := &mdnsConn{sock: sock, queue: make(chan packet, o.PacketsBufSize)}
	for _, udp := range []*net.UDPConn{sock.conn4, sock.conn6} {
		if udp != nil {
			c.wg.Go(func() {
				c.receive(udp, o.UDPRecvBufSize)
			})
		}
	}
	return c, nil
}

// packets is closed once the connection is closed.
func (c *mdnsConn) packets() <-chan packet {
	return c.queue
}

// send multicasts msg to the group, or unicasts it when to is set.
func (c *mdnsConn) send(msg *dns.Msg, to *net.UDPAddr) error {
	b, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("pack message: %w", err)
	}

	dest := "group"
	if to == nil {
		err = c.sock.multicast(b)
	} else {
		dest = to.String()
		err = c.sock.unicast(b, to)
	}
	if err == nil {
		logger.Debug("message sent",
			slog.String("to", dest),
			slog.Bool("response", msg.Response),
			slog.Int("questions", len(msg.Question)),
			slog.Int("answers", len(msg.Answer)+len(msg.Extra)))
	}
	return err
}

func (c *mdnsConn) receive(udp *net.UDPConn, bufSize int) {
	buf := make([]byte, bufSize)
	for {
		n, from, err := udp.ReadFromUDP(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			logger.Warn("receive failed", slog.Any("error", err))
			continue
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			logger.Debug("malformed message", slog.String("from", from.String()), slog.Any("error", err))
			continue
		}

		select {
		case c.queue <- packet{msg: msg, from: from}:
		default:
			logger.Debug("receive queue full, message dropped", slog.String("from", from.String()))
		}
	}
}

func (c *mdnsConn) Close() (err error) {
	c.closeOnce.Do(func() {
		err = c.sock.close()
		c.wg.Wait()
		close(c.queue)
	})
	return
}
