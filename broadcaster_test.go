package iomux

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanoutsAgreeOnResults(t *testing.T) {
	conns := []*fakeConn{{}, {}, {}, {}, {}}
	conns[1].fail(syscall.EPIPE)
	conns[3].fail(syscall.ECONNRESET)

	clients := make([]*client, len(conns))
	for i, c := range conns {
		clients[i] = newClient(c, true)
	}

	seq := newFanout(false, 2).writeAll(clients, []byte("x"))
	par := newFanout(true, 2).writeAll(clients, []byte("y"))

	assert.Len(t, seq, len(clients))
	assert.Equal(t, seq, par)
	for i, err := range seq {
		if i == 1 || i == 3 {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, "xy", conns[0].String())
}

// slowConn counts how many of its kind are writing at once.
type slowConn struct {
	fakeConn
	active, peak *atomic.Int32
}

func (c *slowConn) Write(p []byte) (int, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return len(p), nil
}

func TestParallelFanoutIsBounded(t *testing.T) {
	var active, peak atomic.Int32

	clients := make([]*client, 12)
	for i := range clients {
		clients[i] = newClient(&slowConn{active: &active, peak: &peak}, true)
	}

	errs := newFanout(true, 3).writeAll(clients, []byte("x"))
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}
