package iomux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Source produces the byte stream for one production cycle.
type Source interface {
	// Start begins a production cycle.
	Start(ctx context.Context) (Stream, error)
	// OnDemand reports whether the source is started only once a client
	// is connected, and started again for later clients once a cycle is
	// over.
	OnDemand() bool
	// Mode names the source kind, "stdin" or "command".
	Mode() string
}

// Stream is the output of one production cycle.
type Stream interface {
	io.Reader
	// Close stops reading before the end of the stream.
	Close() error
	// Wait waits for the producer to exit and releases it. It must be
	// called once the stream has been read to the end or closed.
	Wait() error
}

// Stdin returns a Source relaying the standard input of the process.
func Stdin() Source {
	return FromReader(os.Stdin)
}

// FromReader returns a Source relaying r. It is started once, right
// away, and is never restarted.
func FromReader(r io.Reader) Source {
	return readerSource{r: r}
}

type readerSource struct {
	r io.Reader
}

func (s readerSource) Start(context.Context) (Stream, error) {
	return readerStream{s.r}, nil
}

func (readerSource) OnDemand() bool { return false }

func (readerSource) Mode() string { return "stdin" }

type readerStream struct {
	io.Reader
}

func (readerStream) Close() error { return nil }

func (readerStream) Wait() error { return nil }

// Command returns a Source that spawns name with args for every
// production cycle and relays its standard output. The child inherits
// standard input and standard error of the process.
func Command(name string, args ...string) Source {
	return &commandSource{name: name, args: args}
}

type commandSource struct {
	name string
	args []string
}

func (s *commandSource) Start(ctx context.Context) (Stream, error) {
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to get output of %s: %w", s, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to spawn %s: %w", s, err)
	}

	logger.Info("command spawned", slog.String("command", s.String()), slog.Int("pid", cmd.Process.Pid))

	return &commandStream{cmd: cmd, stdout: stdout, name: s.String()}, nil
}

func (*commandSource) OnDemand() bool { return true }

func (*commandSource) Mode() string { return "command" }

func (s *commandSource) String() string {
	return strings.Join(append([]string{s.name}, s.args...), " ")
}

type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	name   string
}

func (s *commandStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close closes the read end of the child's stdout; a child still
// writing gets EPIPE or SIGPIPE. The child is not killed.
func (s *commandStream) Close() error {
	return s.stdout.Close()
}

func (s *commandStream) Wait() error {
	err := s.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Info("command exited", slog.String("command", s.name), slog.Int("pid", s.cmd.Process.Pid), slog.Int("code", 0))
	case errors.As(err, &exitErr):
		logger.Info("command exited",
			slog.String("command", s.name),
			slog.Int("pid", s.cmd.Process.Pid),
			slog.Int("code", exitErr.ExitCode()),
			slog.String("state", exitErr.String()))
		return nil
	}
	return err
}
