// Package scheduler implements the thread-budgeted parallel evaluation
// model of spec.md §5: a global N_THREADS budget shared by every nested
// Compositor dispatch, using a guard channel sized to a computed
// concurrency limit and a WaitGroup-tracked fan-out.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/geopods/podflow/internal/errs"
	"github.com/geopods/podflow/internal/units"
)

// Task evaluates one source under a shared cancellation context.
type Task func(ctx context.Context) (*units.Array, error)

// Scheduler bounds total in-flight Task goroutines across every caller to
// NThreads, via an atomic compare-and-swap reservation so nested
// Compositor calls cannot together exceed the budget.
type Scheduler struct {
	NThreads     int32
	threadsInUse int32
}

func New(nThreads int) *Scheduler {
	if nThreads < 1 {
		nThreads = 1
	}
	return &Scheduler{NThreads: int32(nThreads)}
}

// ThreadsInUse reports the current reservation, for metrics export.
func (s *Scheduler) ThreadsInUse() int32 { return atomic.LoadInt32(&s.threadsInUse) }

// reserve claims up to want threads from the shared budget and returns how
// many it actually got (0 if the budget is fully spent).
func (s *Scheduler) reserve(want int32) int32 {
	for {
		cur := atomic.LoadInt32(&s.threadsInUse)
		avail := s.NThreads - cur
		if avail <= 0 {
			return 0
		}
		got := want
		if got > avail {
			got = avail
		}
		if atomic.CompareAndSwapInt32(&s.threadsInUse, cur, cur+got) {
			return got
		}
	}
}

func (s *Scheduler) release(n int32) {
	if n > 0 {
		atomic.AddInt32(&s.threadsInUse, -n)
	}
}

// Run evaluates tasks, respecting ctx cancellation before dispatching each
// one, and returns their results in declared order regardless of
// completion order. If the shared budget has no spare capacity this call
// falls back to sequential evaluation, per spec.md §5.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) ([]*units.Array, error) {
	n := len(tasks)
	if n == 0 {
		return nil, nil
	}

	reserved := s.reserve(int32(n))
	defer s.release(reserved)

	if reserved <= 1 {
		results := make([]*units.Array, n)
		for i, t := range tasks {
			select {
			case <-ctx.Done():
				return nil, &errs.Cancelled{}
			default:
			}
			r, err := t(ctx)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	results := make([]*units.Array, n)
	sem := make(chan struct{}, reserved)
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i, t := range tasks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, &errs.Cancelled{}
		default:
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := t(ctx)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			results[i] = r
		}(i, t)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
