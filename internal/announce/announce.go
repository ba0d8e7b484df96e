// Package announce advertises a TCP service on the local link over
// multicast DNS (RFC 6762) with DNS-SD records (RFC 6763), and looks
// such services up.
package announce

import (
	"log/slog"
)

var logger = slog.Default().With("lib", "iomux")

func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l.With("lib", "iomux")
	}
}
