package iomux

import "time"

// DefaultListenAddr is the address used when none is given.
const DefaultListenAddr = "localhost:1234"

// DefaultChunkSize is the size of a single read from the source.
const DefaultChunkSize = 4096

// ServiceType is the DNS-SD service type a relay announces itself under.
const ServiceType = "_iomux._tcp.local."

// EmptyPolicy decides what happens when a broadcast leaves the relay
// without clients.
type EmptyPolicy int

const (
	// EmptyContinue keeps draining standard input without clients, and
	// in command mode abandons the running child and waits for the next
	// client to spawn a new one.
	EmptyContinue EmptyPolicy = iota
	// EmptyStop ends the relay the first time the last client goes away.
	EmptyStop
)

func (p EmptyPolicy) String() string {
	switch p {
	case EmptyContinue:
		return "continue"
	case EmptyStop:
		return "stop"
	}
	return "unknown"
}

const (
	// nonblockingWriteWindow bounds a "non-blocking" write on connections
	// that do not expose their descriptor.
	nonblockingWriteWindow = time.Millisecond

	// hangUpTimeout bounds how long a hung up client may keep sending
	// before its connection is closed anyway.
	hangUpTimeout = time.Second

	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)
