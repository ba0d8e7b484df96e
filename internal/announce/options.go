package announce

import (
	"errors"
	"net"
)

type Options struct {
	IPVersion      IPVersion
	BindTo         BindStrategy
	Interfaces     []net.Interface // nil or empty for all available multicast interfaces
	UDPRecvBufSize int             // should be in the range 1500-9000; smaller values may cause data loss
	PacketsBufSize int             // buffer size for received packets; drops packets when full
}

func (o Options) withDefaults() (Options, error) {
	if o.IPVersion == 0 {
		o.IPVersion = IPv4And6
	}
	if o.BindTo == 0 {
		o.BindTo = BindZeroAddr
	}
	if o.UDPRecvBufSize == 0 {
		o.UDPRecvBufSize = 9000
	}
	if o.PacketsBufSize == 0 {
		o.PacketsBufSize = 16
	}

	if len(o.Interfaces) == 0 {
		ifaces, err := multicastInterfaces()
		if err != nil {
			return Options{}, err
		}
		if len(ifaces) == 0 {
			return Options{}, errors.New("no multicast interfaces available")
		}
		o.Interfaces = ifaces
	}

	return o, nil
}
