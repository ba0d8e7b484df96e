package announce

import (
	"net"
	"strings"

	"github.com/miekg/dns"
)

// Service describes one DNS-SD service instance.
type Service struct {
	Instance string   // human readable instance label, e.g. "build log"
	Type     string   // fully qualified service type, e.g. "_iomux._tcp.local."
	Host     string   // fully qualified host name, e.g. "box.local."
	Port     int
	Text     []string // TXT strings, "key=value"
	Addrs    []net.IP
}

// InstanceName returns the fully qualified instance name.
func (s Service) InstanceName() string {
	return escapeLabel(s.Instance) + "." + s.Type
}

// escapeLabel puts a label in presentation format the way miekg/dns
// prints received names, so both compare equal.
func escapeLabel(l string) string {
	var b strings.Builder
	for i := 0; i < len(l); i++ {
		switch c := l[i]; c {
		case '.', '(', ')', ';', ' ', '@', '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unescapeLabel(l string) string {
	var b strings.Builder
	for i := 0; i < len(l); i++ {
		if l[i] != '\\' || i+1 == len(l) {
			b.WriteByte(l[i])
			continue
		}
		i++
		if i+2 < len(l) && isDigit(l[i]) && isDigit(l[i+1]) && isDigit(l[i+2]) {
			b.WriteByte((l[i]-'0')*100 + (l[i+1]-'0')*10 + (l[i+2] - '0'))
			i += 2
			continue
		}
		b.WriteByte(l[i])
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (s Service) ptr(ttl uint32) dns.RR {
	return &dns.PTR{
		Hdr: dns.RR_Header{Name: s.Type, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: s.InstanceName(),
	}
}

func (s Service) srv(ttl uint32) dns.RR {
	return &dns.SRV{
		Hdr:    dns.RR_Header{Name: s.InstanceName(), Rrtype: dns.TypeSRV, Class: dns.ClassINET | classTopBit, Ttl: ttl},
		Port:   uint16(s.Port),
		Target: s.Host,
	}
}

func (s Service) txt(ttl uint32) dns.RR {
	text := s.Text
	if len(text) == 0 {
		// a TXT record carries at least one, possibly empty, string
		text = []string{""}
	}
	return &dns.TXT{
		Hdr: dns.RR_Header{Name: s.InstanceName(), Rrtype: dns.TypeTXT, Class: dns.ClassINET | classTopBit, Ttl: ttl},
		Txt: text,
	}
}

// addrs returns the host's A and AAAA records, filtered by qtype.
func (s Service) addrs(ttl uint32, qtype uint16) []dns.RR {
	var rrs []dns.RR
	for _, ip := range s.Addrs {
		if ip4 := ip.To4(); ip4 != nil {
			if qtype == dns.TypeA || qtype == dns.TypeANY {
				rrs = append(rrs, &dns.A{
					Hdr: dns.RR_Header{Name: s.Host, Rrtype: dns.TypeA, Class: dns.ClassINET | classTopBit, Ttl: ttl},
					A:   ip4,
				})
			}
			continue
		}
		if qtype == dns.TypeAAAA || qtype == dns.TypeANY {
			rrs = append(rrs, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: s.Host, Rrtype: dns.TypeAAAA, Class: dns.ClassINET | classTopBit, Ttl: ttl},
				AAAA: ip,
			})
		}
	}
	return rrs
}

// announcement is an unsolicited response carrying every record of the
// service. A zero ttl turns it into a goodbye.
func (s Service) announcement(ttl uint32) *dns.Msg {
	m := new(dns.Msg)
	m.Response = true
	m.Authoritative = true
	m.Answer = append([]dns.RR{s.ptr(ttl), s.srv(ttl), s.txt(ttl)}, s.addrs(ttl, dns.TypeANY)...)
	return m
}

// answer builds the response to query, or nil if no question is about
// this service.
func (s Service) answer(query *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.Response = true
	resp.Authoritative = true

	for _, q := range query.Question {
		class := q.Qclass &^ classTopBit
		if class != dns.ClassINET && class != dns.ClassANY {
			continue
		}

		switch {
		case strings.EqualFold(q.Name, servicesMetaQuery) && isType(q, dns.TypePTR):
			resp.Answer = append(resp.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: servicesMetaQuery, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: DefaultTTL},
				Ptr: s.Type,
			})

		case strings.EqualFold(q.Name, s.Type) && isType(q, dns.TypePTR):
			resp.Answer = append(resp.Answer, s.ptr(DefaultTTL))
			resp.Extra = append(resp.Extra, s.srv(DefaultTTL), s.txt(DefaultTTL))
			resp.Extra = append(resp.Extra, s.addrs(DefaultTTL, dns.TypeANY)...)

		case strings.EqualFold(q.Name, s.InstanceName()):
			if isType(q, dns.TypeSRV) {
				resp.Answer = append(resp.Answer, s.srv(DefaultTTL))
				resp.Extra = append(resp.Extra, s.addrs(DefaultTTL, dns.TypeANY)...)
			}
			if isType(q, dns.TypeTXT) {
				resp.Answer = append(resp.Answer, s.txt(DefaultTTL))
			}

		case strings.EqualFold(q.Name, s.Host):
			resp.Answer = append(resp.Answer, s.addrs(DefaultTTL, q.Qtype)...)
		}
	}

	if len(resp.Answer) == 0 {
		return nil
	}
	return resp
}

func isType(q dns.Question, t uint16) bool {
	return q.Qtype == t || q.Qtype == dns.TypeANY
}

// wantsUnicast reports whether the querier asked for a direct reply:
// either it set the unicast-response bit, or it is not sending from
// the mDNS port and so would never see a multicast answer.
func wantsUnicast(query *dns.Msg, from *net.UDPAddr) bool {
	if from != nil && from.Port != mdnsPort {
		return true
	}
	for _, q := range query.Question {
		if q.Qclass&classTopBit == 0 {
			return false
		}
	}
	return len(query.Question) > 0
}
