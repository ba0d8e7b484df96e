package iomux

import (
	"errors"
	"runtime"
)

type Options struct {
	// Blocking writes every chunk fully to every client. When false a
	// client that cannot take a chunk right away misses (part of) it.
	Blocking bool
	// Parallel writes a chunk to all clients concurrently instead of one
	// after another.
	Parallel bool
	// Workers bounds the number of concurrent writes in parallel mode.
	Workers int
	// ChunkSize is the read size from the source.
	ChunkSize int
	// OnEmpty decides what happens once the last client is gone.
	OnEmpty EmptyPolicy
	// RateLimit caps the source read rate in bytes per second; 0 disables it.
	RateLimit int64
	// Announce advertises the relay over mDNS under this instance name.
	Announce string
	// Source produces the stream; nil relays standard input.
	Source Source
}

func (o *Options) withDefaults() (*Options, error) {
	if o == nil {
		return &Options{
			Workers:   runtime.GOMAXPROCS(0),
			ChunkSize: DefaultChunkSize,
			Source:    Stdin(),
		}, nil
	}

	c := *o
	if c.Workers < 0 || c.ChunkSize < 0 || c.RateLimit < 0 {
		return nil, errors.New("workers, chunk size and rate limit must not be negative")
	}
	if c.OnEmpty != EmptyContinue && c.OnEmpty != EmptyStop {
		return nil, errors.New("unknown empty policy")
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Source == nil {
		c.Source = Stdin()
	}
	return &c, nil
}
