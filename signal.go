package iomux

// readiness is a single-slot event from the acceptor to the relay loop
// saying the relay just got its first client. Firing while an event is
// already pending is a no-op.
type readiness struct {
	c chan struct{}
}

func newReadiness() *readiness {
	return &readiness{c: make(chan struct{}, 1)}
}

func (r *readiness) fire() {
	select {
	case r.c <- struct{}{}:
	default:
	}
}

func (r *readiness) wait() <-chan struct{} {
	return r.c
}
