package announce

import "net"

func multicastInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	mifaces := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		mifaces = append(mifaces, iface)
	}

	return mifaces, nil
}

// interfaceIPVersion reports which address families iface carries.
func interfaceIPVersion(iface *net.Interface) (hasIPv4, hasIPv6 bool) {
	for _, ip := range interfaceIPs(iface) {
		if ip.To4() != nil {
			hasIPv4 = true
		} else {
			hasIPv6 = true
		}
	}
	return
}

func interfaceIPs(iface *net.Interface) []net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		logger.Debug("failed to list interface addresses", "interface", iface.Name, "error", err)
		return nil
	}

	var ips []net.IP
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

// LocalAddrs returns the addresses a host record should carry: every
// address of the up, multicast-capable interfaces except IPv6
// link-local ones, which are unusable without a zone.
func LocalAddrs() ([]net.IP, error) {
	ifaces, err := multicastInterfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for i := range ifaces {
		for _, ip := range interfaceIPs(&ifaces[i]) {
			if ip.To4() == nil && ip.IsLinkLocalUnicast() {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, nil
}
