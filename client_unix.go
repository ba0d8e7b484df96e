//go:build unix

package iomux

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// writeRaw issues write(2) on the connection's descriptor until p is
// written or the kernel buffer is full. It never parks on the poller.
// ok is false when the descriptor is not reachable.
func writeRaw(sc syscall.Conn, p []byte) (n int, ok bool, err error) {
	raw, rerr := sc.SyscallConn()
	if rerr != nil {
		return 0, false, nil
	}

	var werr error
	rerr = raw.Write(func(fd uintptr) bool {
		for n < len(p) {
			m, e := unix.Write(int(fd), p[n:])
			if e == unix.EINTR {
				continue
			}
			if e != nil {
				werr = e
				break
			}
			if m == 0 {
				break
			}
			n += m
		}
		// always done: returning false would wait for writability
		return true
	})
	if rerr != nil {
		return n, true, rerr
	}

	switch {
	case werr == unix.EAGAIN:
		return n, true, errWouldBlock
	case werr != nil:
		return n, true, os.NewSyscallError("write", werr)
	case n < len(p):
		return n, true, errWouldBlock
	}
	return n, true, nil
}
