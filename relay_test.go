package iomux

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSource counts the cycles of the wrapped source. With a gate, every
// cycle waits for a token before it starts.
type gatedSource struct {
	Source
	gate   chan struct{}
	starts atomic.Int32
}

func (s *gatedSource) Start(ctx context.Context) (Stream, error) {
	s.starts.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Source.Start(ctx)
}

func TestRelayStdinToEveryClient(t *testing.T) {
	for _, test := range []struct {
		name     string
		blocking bool
		parallel bool
	}{
		{"blocking sequential", true, false},
		{"blocking parallel", true, true},
		{"nonblocking sequential", false, false},
		{"nonblocking parallel", false, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			pr, pw := io.Pipe()
			r, _, done := runRelay(t, &Options{
				Blocking: test.blocking,
				Parallel: test.parallel,
				Source:   FromReader(pr),
			})

			a, b := dial(t, r), dial(t, r)
			waitClients(t, r, 2)

			go func() {
				pw.Write([]byte("hello "))
				pw.Write([]byte("world\n"))
				pw.Close()
			}()

			assert.Equal(t, "hello world\n", readAll(t, a))
			assert.Equal(t, "hello world\n", readAll(t, b))
			assert.NoError(t, waitDone(t, done))
		})
	}
}

func TestRelayStdinDrainsWithoutClients(t *testing.T) {
	pr, pw := io.Pipe()
	r, _, done := runRelay(t, &Options{Source: FromReader(pr)})

	_, err := pw.Write([]byte("head"))
	require.NoError(t, err)
	// an empty write returns only once the relay reads again, so the
	// head has been dropped by then
	_, err = pw.Write(nil)
	require.NoError(t, err)

	conn := dial(t, r)
	waitClients(t, r, 1)

	go func() {
		pw.Write([]byte("tail"))
		pw.Close()
	}()

	assert.Equal(t, "tail", readAll(t, conn))
	assert.NoError(t, waitDone(t, done))
}

func TestRelayStdinStopsWhenLastClientLeaves(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	r, _, done := runRelay(t, &Options{OnEmpty: EmptyStop, Source: FromReader(pr)})

	conn := dial(t, r)
	waitClients(t, r, 1)

	go func() {
		chunk := bytes.Repeat([]byte{'x'}, 512)
		for {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 512)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.NoError(t, waitDone(t, done))
}

func TestRelayCommandSpawnsPerClientWave(t *testing.T) {
	src := &gatedSource{
		Source: Command("/bin/sh", "-c", `printf 'A\nB\n'`),
		gate:   make(chan struct{}),
	}
	r, _, done := runRelay(t, &Options{Blocking: true, Source: src})

	// nothing runs before the first client
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, src.starts.Load())

	a := dial(t, r)
	require.Eventually(t, func() bool { return src.starts.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	b := dial(t, r)
	waitClients(t, r, 2)
	src.gate <- struct{}{}

	assert.Equal(t, "A\nB\n", readAll(t, a))
	assert.Equal(t, "A\nB\n", readAll(t, b))
	waitClients(t, r, 0)

	// no respawn until someone connects again
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, src.starts.Load())

	c := dial(t, r)
	require.Eventually(t, func() bool { return src.starts.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	src.gate <- struct{}{}
	assert.Equal(t, "A\nB\n", readAll(t, c))

	select {
	case err := <-done:
		t.Fatalf("command relay stopped: %v", err)
	default:
	}
}

func TestRelayCommandAbandonedWhenClientsLeave(t *testing.T) {
	src := &gatedSource{Source: Command("yes")}
	r, _, done := runRelay(t, &Options{Source: src})

	a := dial(t, r)
	buf := make([]byte, 64)
	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(a, buf)
	require.NoError(t, err)
	assert.Equal(t, "y\n", string(buf[:2]))
	require.NoError(t, a.Close())

	waitClients(t, r, 0)
	assert.EqualValues(t, 1, src.starts.Load())

	b := dial(t, r)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.starts.Load())

	select {
	case err := <-done:
		t.Fatalf("command relay stopped: %v", err)
	default:
	}
}

func TestRelayCommandStopsWhenLastClientLeaves(t *testing.T) {
	r, _, done := runRelay(t, &Options{OnEmpty: EmptyStop, Source: Command("yes")})

	a := dial(t, r)
	buf := make([]byte, 64)
	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(a, buf)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.NoError(t, waitDone(t, done))
}

func TestRelaySpawnFailure(t *testing.T) {
	r, _, done := runRelay(t, &Options{Source: Command("/nonexistent/iomux-test-command")})

	conn := dial(t, r)

	// the client is hung up on the way out
	assert.Equal(t, "", readAll(t, conn))

	err := waitDone(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to spawn")
}

func TestListenBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen(l.Addr().String(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to bind")
}

func TestRelayCancel(t *testing.T) {
	for name, src := range map[string]Source{
		"stdin":   FromReader(blockingReader{}),
		"command": Command("yes"),
	} {
		t.Run(name, func(t *testing.T) {
			r, cancel, done := runRelay(t, &Options{Source: src})
			conn := dial(t, r)
			waitClients(t, r, 1)

			cancel()

			// the client is hung up and the listener is closed
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
			_, err := io.Copy(io.Discard, conn)
			assert.NoError(t, err)
			require.NoError(t, conn.Close())

			assert.ErrorIs(t, waitDone(t, done), context.Canceled)
			_, err = net.Dial("tcp", r.Addr().String())
			assert.Error(t, err)
		})
	}
}

// blockingReader never returns.
type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestRelayRateLimit(t *testing.T) {
	const size = 200_000

	pr, pw := io.Pipe()
	r, _, done := runRelay(t, &Options{
		Blocking:  true,
		RateLimit: 100_000,
		Source:    FromReader(pr),
	})

	conn := dial(t, r)
	waitClients(t, r, 1)

	start := time.Now()
	go func() {
		pw.Write(make([]byte, size))
		pw.Close()
	}()

	got := readAll(t, conn)
	assert.Len(t, got, size)
	// a full bucket covers the first second of data, the rest trickles
	assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond)
	assert.NoError(t, waitDone(t, done))
}

func TestRelayAddrAndClients(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r, _, _ := runRelay(t, &Options{Source: FromReader(pr)})
	tcpAddr, ok := r.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, tcpAddr.Port)

	assert.Zero(t, r.Clients())
	dial(t, r)
	dial(t, r)
	waitClients(t, r, 2)
}

func TestRelayHangUpIsCleanForTalkingClients(t *testing.T) {
	t.Run("command output ends", func(t *testing.T) {
		r, _, _ := runRelay(t, &Options{Source: &gatedSource{
			Source: Command("/bin/sh", "-c", `printf 'A\nB\n'`),
			gate:   make(chan struct{}, 1),
		}})
		src := r.opts.Source.(*gatedSource)

		conn := dial(t, r)
		_, err := conn.Write([]byte("hello from client\n"))
		require.NoError(t, err)
		waitClients(t, r, 1)
		// let the input reach the relay before the command runs
		time.Sleep(20 * time.Millisecond)
		src.gate <- struct{}{}

		assert.Equal(t, "A\nB\n", readAll(t, conn))
	})

	t.Run("standard input ends", func(t *testing.T) {
		pr, pw := io.Pipe()
		r, _, done := runRelay(t, &Options{Blocking: true, Source: FromReader(pr)})

		conn := dial(t, r)
		_, err := conn.Write([]byte("hello from client\n"))
		require.NoError(t, err)
		waitClients(t, r, 1)
		time.Sleep(20 * time.Millisecond)

		big := bytes.Repeat([]byte("0123456789abcdef"), 1<<16)
		go func() {
			pw.Write(big)
			pw.Close()
		}()

		assert.Equal(t, len(big), len(readAll(t, conn)))
		assert.NoError(t, waitDone(t, done))
	})
}
