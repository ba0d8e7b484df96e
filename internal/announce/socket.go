package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type socket struct {
	conn4    *net.UDPConn
	conn6    *net.UDPConn
	connIPv4 *ipv4.PacketConn
	connIPv6 *ipv6.PacketConn

	// interfaces on which the group was joined, per family
	ifaces4 []net.Interface
	ifaces6 []net.Interface

	// Protect SetMulticastInterface + WriteToUDP as a single atomic operation
	// to avoid races when multicast is called concurrently from multiple goroutines.
	sendMu sync.Mutex

	closeOnce sync.Once
}

func newSocket(opts Options) (*socket, error) {
	s := &socket{}

	addr4, addr6 := bindAddrs(opts.BindTo)

	var err4, err6 error
	if opts.IPVersion&IPv4 != 0 {
		err4 = s.newUDP4Conn(addr4, opts.Interfaces)
	}
	if opts.IPVersion&IPv6 != 0 {
		err6 = s.newUDP6Conn(addr6, opts.Interfaces)
	}

	if s.conn4 == nil && s.conn6 == nil {
		return nil, errors.Join(err4, err6, errors.New("no usable mDNS socket"))
	}
	if err4 != nil {
		logger.Debug("IPv4 socket unavailable; using IPv6 only", slog.Any("error", err4))
	}
	if err6 != nil {
		logger.Debug("IPv6 socket unavailable; using IPv4 only", slog.Any("error", err6))
	}

	logger.Debug("sockets created", slog.Bool("ipv4", s.conn4 != nil), slog.Bool("ipv6", s.conn6 != nil))

	return s, nil
}

// listenUDP binds addr with address reuse so that a system mDNS daemon
// already holding port 5353 does not lock the responder out.
func listenUDP(network string, addr *net.UDPAddr) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), network, addr.String())
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn %T", pc)
	}
	return conn, nil
}

func (s *socket) newUDP4Conn(addr *net.UDPAddr, ifaces []net.Interface) error {
	conn, err := listenUDP("udp4", addr)
	if err != nil {
		return err
	}

	v4conn := ipv4.NewPacketConn(conn)
	if err := v4conn.SetMulticastTTL(_MDNSDefaultHopLimit); err != nil {
		logger.Debug("failed to set multicast TTL on IPv4 socket; continuing", slog.Any("error", err))
	}
	if err := v4conn.SetMulticastLoopback(true); err != nil {
		logger.Debug("failed to set multicast loopback on IPv4 socket; continuing", slog.Any("error", err))
	}

	for _, iface := range ifaces {
		if hasIPv4, _ := interfaceIPVersion(&iface); !hasIPv4 {
			continue
		}
		if err := v4conn.JoinGroup(&iface, mdnsGaddrUDP4); err != nil {
			logger.Debug("failed to join ipv4 multicast group; skipping", slog.String("interface", iface.Name), slog.Any("error", err))
			continue
		}
		s.ifaces4 = append(s.ifaces4, iface)
	}

	if len(s.ifaces4) == 0 {
		conn.Close()
		return errors.New("no multicast group joined on any interface for IPv4")
	}
	logger.Debug("joined multicast group on IPv4 interfaces", slog.Int("joined", len(s.ifaces4)), slog.Int("total", len(ifaces)))

	s.conn4, s.connIPv4 = conn, v4conn
	return nil
}

func (s *socket) newUDP6Conn(addr *net.UDPAddr, ifaces []net.Interface) error {
	conn, err := listenUDP("udp6", addr)
	if err != nil {
		return err
	}

	v6conn := ipv6.NewPacketConn(conn)
	if err := v6conn.SetMulticastHopLimit(_MDNSDefaultHopLimit); err != nil {
		logger.Debug("failed to set multicast hop limit on IPv6 socket; continuing", slog.Any("error", err))
	}
	if err := v6conn.SetMulticastLoopback(true); err != nil {
		logger.Debug("failed to set multicast loopback on IPv6 socket; continuing", slog.Any("error", err))
	}

	for _, iface := range ifaces {
		if _, hasIPv6 := interfaceIPVersion(&iface); !hasIPv6 {
			continue
		}
		if err := v6conn.JoinGroup(&iface, mdnsGaddrUDP6); err != nil {
			logger.Debug("failed to join ipv6 multicast group; skipping", slog.String("interface", iface.Name), slog.Any("error", err))
			continue
		}
		s.ifaces6 = append(s.ifaces6, iface)
	}

	if len(s.ifaces6) == 0 {
		conn.Close()
		return errors.New("no multicast group joined on any interface for IPv6")
	}
	logger.Debug("joined multicast group on IPv6 interfaces", slog.Int("joined", len(s.ifaces6)), slog.Int("total", len(ifaces)))

	s.conn6, s.connIPv6 = conn, v6conn
	return nil
}

func (s *socket) close() error {
	var err4, err6 error
	s.closeOnce.Do(func() {
		if s.conn4 != nil {
			// closing conn4 is sufficient to close connIPv4
			err4 = s.conn4.Close()
		}
		if s.conn6 != nil {
			err6 = s.conn6.Close()
		}
	})
	return errors.Join(err4, err6)
}

func (s *socket) unicast(b []byte, addr *net.UDPAddr) error {
	var conn *net.UDPConn
	switch {
	case addr.IP.To4() != nil:
		conn = s.conn4
	case addr.IP.To16() != nil:
		conn = s.conn6
	default:
		return errors.New("address is not valid IPv4 or IPv6")
	}
	if conn == nil {
		return fmt.Errorf("no socket available for %s", addr)
	}

	if _, err := conn.WriteToUDP(b, addr); err != nil {
		logger.Debug("failed to write to unicast address", slog.String("address", addr.String()), slog.Any("error", err))
		return err
	}
	return nil
}

// multicast sends b to the group on every joined interface of every
// family and fails only if nothing was sent at all.
func (s *socket) multicast(b []byte) error {
	var sent4, sent6 int

	for _, iface := range s.ifaces4 {
		s.sendMu.Lock()
		err := s.connIPv4.SetMulticastInterface(&iface)
		if err == nil {
			_, err = s.conn4.WriteToUDP(b, mdnsGaddrUDP4)
		}
		s.sendMu.Unlock()
		if err != nil {
			logger.Debug("failed to multicast on IPv4 interface; skipping", slog.String("interface", iface.Name), slog.Any("error", err))
			continue
		}
		sent4++
	}

	for _, iface := range s.ifaces6 {
		s.sendMu.Lock()
		err := s.connIPv6.SetMulticastInterface(&iface)
		if err == nil {
			_, err = s.conn6.WriteToUDP(b, mdnsGaddrUDP6)
		}
		s.sendMu.Unlock()
		if err != nil {
			logger.Debug("failed to multicast on IPv6 interface; skipping", slog.String("interface", iface.Name), slog.Any("error", err))
			continue
		}
		sent6++
	}

	if sent4 == 0 && sent6 == 0 {
		return errors.New("no message sent on either IPv4 or IPv6")
	}
	return nil
}
