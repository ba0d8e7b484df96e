package announce

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const queryInterval = time.Second

// Lookup queries the local link for instances of serviceType and
// returns the first one that is complete (port and at least one
// address known) and whose instance label is instance. An empty
// instance matches any. The query is repeated until ctx is done.
func Lookup(ctx context.Context, serviceType, instance string, opts Options) (*Service, error) {
	opts.BindTo = BindZeroAddr

	c, err := newConn(opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	query := new(dns.Msg)
	query.SetQuestion(serviceType, dns.TypePTR)
	query.Id = 0
	query.RecursionDesired = false

	send := func() {
		if err := c.send(query, nil); err != nil {
			logger.Debug("failed to send query", slog.String("type", serviceType), slog.Any("error", err))
		}
	}
	send()

	ticker := time.NewTicker(queryInterval)
	defer ticker.Stop()

	b := newBrowser(serviceType)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			send()
		case pkt, ok := <-c.packets():
			if !ok {
				return nil, errors.New("connection closed")
			}
			if !pkt.msg.Response {
				continue
			}
			b.add(pkt.msg)
			if svc := b.complete(instance); svc != nil {
				return svc, nil
			}
		}
	}
}

// browser accumulates records from responses until a service instance
// is fully known. Records may arrive spread over several messages.
type browser struct {
	serviceType string
	services    map[string]*Service // keyed by lowercased instance name
	hosts       map[string][]net.IP // keyed by lowercased host name
}

func newBrowser(serviceType string) *browser {
	return &browser{
		serviceType: serviceType,
		services:    make(map[string]*Service),
		hosts:       make(map[string][]net.IP),
	}
}

func (b *browser) service(name string) *Service {
	key := strings.ToLower(name)
	svc, ok := b.services[key]
	if !ok {
		label, _ := strings.CutSuffix(name, "."+b.serviceType)
		svc = &Service{Instance: unescapeLabel(label), Type: b.serviceType}
		b.services[key] = svc
	}
	return svc
}

func (b *browser) isInstance(name string) bool {
	return len(name) > len(b.serviceType)+1 &&
		strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(b.serviceType))
}

func (b *browser) add(msg *dns.Msg) {
	records := append(append([]dns.RR{}, msg.Answer...), msg.Extra...)
	for _, rr := range records {
		// a zero TTL is a goodbye
		gone := rr.Header().Ttl == 0

		switch rr := rr.(type) {
		case *dns.PTR:
			if !strings.EqualFold(rr.Hdr.Name, b.serviceType) {
				continue
			}
			if gone {
				delete(b.services, strings.ToLower(rr.Ptr))
				continue
			}
			b.service(rr.Ptr)
		case *dns.SRV:
			if gone || !b.isInstance(rr.Hdr.Name) {
				continue
			}
			svc := b.service(rr.Hdr.Name)
			svc.Host = rr.Target
			svc.Port = int(rr.Port)
		case *dns.TXT:
			if gone || !b.isInstance(rr.Hdr.Name) {
				continue
			}
			b.service(rr.Hdr.Name).Text = rr.Txt
		case *dns.A:
			if !gone {
				b.addHost(rr.Hdr.Name, rr.A)
			}
		case *dns.AAAA:
			if !gone {
				b.addHost(rr.Hdr.Name, rr.AAAA)
			}
		}
	}
}

func (b *browser) addHost(name string, ip net.IP) {
	key := strings.ToLower(name)
	for _, known := range b.hosts[key] {
		if known.Equal(ip) {
			return
		}
	}
	b.hosts[key] = append(b.hosts[key], ip)
}

func (b *browser) complete(instance string) *Service {
	for _, svc := range b.services {
		if instance != "" && !strings.EqualFold(svc.Instance, instance) {
			continue
		}
		addrs := b.hosts[strings.ToLower(svc.Host)]
		if svc.Port == 0 || len(addrs) == 0 {
			continue
		}
		found := *svc
		found.Addrs = append([]net.IP(nil), addrs...)
		return &found
	}
	return nil
}
