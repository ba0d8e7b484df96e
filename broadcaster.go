package iomux

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// fanout writes one chunk to every client and reports a per-client
// result, nil meaning the client stays registered. Results are indexed
// like cs.
type fanout interface {
	writeAll(cs []*client, p []byte) []error
}

func newFanout(parallel bool, workers int) fanout {
	if parallel {
		return parallelFanout{workers: int64(max(workers, 1))}
	}
	return sequentialFanout{}
}

type sequentialFanout struct{}

func (sequentialFanout) writeAll(cs []*client, p []byte) []error {
	errs := make([]error, len(cs))
	for i, c := range cs {
		errs[i] = c.write(p)
	}
	return errs
}

// parallelFanout issues the writes of a chunk concurrently, at most
// workers at a time, and returns once all of them are done. There is no
// ordering between clients for the same chunk.
type parallelFanout struct {
	workers int64
}

func (f parallelFanout) writeAll(cs []*client, p []byte) []error {
	errs := make([]error, len(cs))
	if len(cs) == 1 {
		errs[0] = cs[0].write(p)
		return errs
	}

	sem := semaphore.NewWeighted(f.workers)
	var wg sync.WaitGroup
	for i, c := range cs {
		// never fails, the context is not cancelled
		_ = sem.Acquire(context.Background(), 1)
		wg.Go(func() {
			defer sem.Release(1)
			errs[i] = c.write(p)
		})
	}
	wg.Wait()
	return errs
}
