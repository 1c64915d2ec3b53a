package field

import (
	"context"
	"sync"
)

// unit is one independent slice of work: a row band, a source batch, or a
// depth layer, identified by the half-open range [Lo, Hi).
type unit struct {
	ID     int
	Lo, Hi int
}

type unitResult struct {
	ID  int
	Err error
}

// workerPool fans units out over a task channel and collects one result per
// unit. Workers are identified by index so callers can keep per-worker
// scratch state without locking.
type workerPool struct {
	tasks   chan unit
	results chan unitResult
	workers int
	wg      sync.WaitGroup
}

func newWorkerPool(workers, units int) *workerPool {
	if workers > units {
		workers = units
	}
	if workers < 1 {
		workers = 1
	}
	return &workerPool{
		tasks:   make(chan unit, units),
		results: make(chan unitResult, units),
		workers: workers,
	}
}

func (wp *workerPool) start(ctx context.Context, counters *Counters, fn func(worker int, u unit) error) {
	for w := 0; w < wp.workers; w++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			for u := range wp.tasks {
				// Cancellation is honoured between units only.
				if err := ctx.Err(); err != nil {
					wp.results <- unitResult{ID: u.ID, Err: err}
					continue
				}
				err := fn(id, u)
				if err == nil {
					counters.complete()
				}
				wp.results <- unitResult{ID: u.ID, Err: err}
			}
		}(w)
	}
}

// runUnits executes fn over every unit on up to workers goroutines and
// returns the first error. A failing unit cancels the units not yet started.
func runUnits(ctx context.Context, workers int, units []unit, counters *Counters, fn func(worker int, u unit) error) error {
	if len(units) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp := newWorkerPool(workers, len(units))
	wp.start(ctx, counters, fn)
	for _, u := range units {
		counters.schedule()
		wp.tasks <- u
	}
	close(wp.tasks)

	var firstErr error
	for range units {
		res := <-wp.results
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
			cancel()
		}
	}
	wp.wg.Wait()
	return firstErr
}

// split cuts [0, n) into units of at most size elements.
func split(n, size int) []unit {
	if size < 1 {
		size = 1
	}
	units := make([]unit, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		units = append(units, unit{ID: len(units), Lo: lo, Hi: hi})
	}
	return units
}

// mergeTree sums partial fields pairwise, level by level. Each pair is merged
// by a single goroutine that owns the left operand, so no two goroutines
// ever write the same field.
func mergeTree(parts []*ComplexField) (*ComplexField, error) {
	live := parts[:0:0]
	for _, p := range parts {
		if p != nil {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}
	for len(live) > 1 {
		next := make([]*ComplexField, (len(live)+1)/2)
		errs := make([]error, len(next))
		var wg sync.WaitGroup
		for i := 0; i < len(live); i += 2 {
			if i+1 == len(live) {
				next[i/2] = live[i]
				continue
			}
			wg.Add(1)
			go func(dst, src *ComplexField, slot int) {
				defer wg.Done()
				errs[slot] = dst.Add(src)
				next[slot] = dst
			}(live[i], live[i+1], i/2)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		live = next
	}
	return live[0], nil
}
