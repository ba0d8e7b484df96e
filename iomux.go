// Package iomux relays one byte stream, standard input or the standard
// output of a command, to every TCP client connected to a listener.
//
// Every client receives the same bytes, starting from the moment it is
// accepted. Nothing is buffered or replayed for late or slow clients.
package iomux

import (
	"log/slog"

	"github.com/oosawy/iomux/internal/announce"
)

var logger = slog.Default().With("pkg", "iomux")

func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l.With("pkg", "iomux")
		announce.SetLogger(l)
	}
}
