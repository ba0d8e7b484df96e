package iomux

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// peerGone lists the errors a write fails with once the client went
// away, as opposed to a real fault on our side.
var peerGone = []error{
	io.EOF,
	net.ErrClosed,
	syscall.EPIPE,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range peerGone {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
