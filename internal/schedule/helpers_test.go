package schedule

import (
	"context"
	"iter"
	"sync"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects the clock reading at each run.
type recorder struct {
	mu    sync.Mutex
	clock *fakeClock
	runs  []time.Time
	names []string
}

func (r *recorder) runner(name string) Runner {
	return RunnerFunc(func(context.Context, *JobContext) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, r.clock.Now())
		r.names = append(r.names, name)
	})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func (r *recorder) offsets() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.runs))
	for i, t := range r.runs {
		out[i] = t.Sub(epoch)
	}
	return out
}

func newTestScheduler(clock *fakeClock, opts ...Option) *Scheduler {
	return NewScheduler(append([]Option{WithClock(clock.Now), WithLocation(time.UTC)}, opts...)...)
}

// sliceSource replays a fixed list of instants.
type sliceSource []time.Time

func (s sliceSource) Occurrences(after time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for _, t := range s {
			if t.After(after) && !yield(t) {
				return
			}
		}
	}
}

func (s sliceSource) String() string { return "fixed" }
