package iomux

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/oosawy/iomux/internal/announce"
)

// announce advertises the relay on the local link until ctx is done.
// Failing to announce never stops the relay.
func (r *Relay) announce(ctx context.Context) {
	svc, err := r.service()
	if err != nil {
		logger.Warn("mDNS announcement disabled", slog.Any("error", err))
		return
	}

	resp, err := announce.NewResponder(svc, announce.Options{})
	if err != nil {
		logger.Warn("mDNS announcement disabled", slog.Any("error", err))
		return
	}
	logger.Info("announcing relay",
		slog.String("instance", svc.InstanceName()),
		slog.String("host", svc.Host),
		slog.Int("port", svc.Port))

	<-ctx.Done()
	if err := resp.Close(); err != nil {
		logger.Debug("mDNS responder close", slog.Any("error", err))
	}
}

func (r *Relay) service() (announce.Service, error) {
	tcpAddr, ok := r.Addr().(*net.TCPAddr)
	if !ok {
		return announce.Service{}, errors.New("listener is not TCP")
	}

	hostname, err := os.Hostname()
	if err != nil {
		return announce.Service{}, err
	}
	hostname, _, _ = strings.Cut(hostname, ".")

	var addrs []net.IP
	switch {
	case tcpAddr.IP.IsLoopback():
		return announce.Service{}, errors.New("listening on loopback only")
	case tcpAddr.IP != nil && !tcpAddr.IP.IsUnspecified():
		addrs = []net.IP{tcpAddr.IP}
	default:
		if addrs, err = announce.LocalAddrs(); err != nil {
			return announce.Service{}, err
		}
	}
	if len(addrs) == 0 {
		return announce.Service{}, errors.New("no address to announce")
	}

	return announce.Service{
		Instance: r.opts.Announce,
		Type:     ServiceType,
		Host:     hostname + ".local.",
		Port:     tcpAddr.Port,
		Text: []string{
			"mode=" + r.opts.Source.Mode(),
			"blocking=" + strconv.FormatBool(r.opts.Blocking),
			"parallel=" + strconv.FormatBool(r.opts.Parallel),
		},
		Addrs: addrs,
	}, nil
}

// Discover looks for a relay announced on the local link under
// instance, any relay if instance is empty, and returns its host:port.
// It keeps asking until ctx is done.
func Discover(ctx context.Context, instance string) (string, error) {
	svc, err := announce.Lookup(ctx, ServiceType, instance, announce.Options{})
	if err != nil {
		return "", err
	}

	addr := svc.Addrs[0]
	for _, ip := range svc.Addrs {
		if ip.To4() != nil {
			addr = ip
			break
		}
	}
	return net.JoinHostPort(addr.String(), strconv.Itoa(svc.Port)), nil
}
