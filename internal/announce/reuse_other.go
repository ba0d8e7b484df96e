//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package announce

import "syscall"

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
