package schedule

import (
	"time"

	"github.com/google/uuid"
)

// JobContext is the mutable lifecycle state of one job.
//
// It holds no scheduling logic. The owning Job serializes access to it: a
// Runner may read and write the context it is handed, but must not call Start
// or Finish.
type JobContext struct {
	id   uuid.UUID
	name string

	disabled  bool
	immediate bool

	// bounded is false for jobs without a run limit.
	bounded   bool
	remaining int

	lastTick time.Time
	data     any

	running     bool
	startedAt   time.Time
	executions  uint64
	lastElapsed time.Duration
}

// NewJobContext returns a context with a fresh identifier and defaults:
// enabled, not immediate, unbounded.
func NewJobContext() *JobContext {
	return &JobContext{id: uuid.New()}
}

// Start marks the beginning of one execution.
func (c *JobContext) Start() {
	c.running = true
	c.startedAt = time.Now()
}

// Finish marks the end of one execution and consumes one tick of a bounded
// run count.
func (c *JobContext) Finish() {
	if c.bounded && c.remaining > 0 {
		c.remaining--
	}
	c.executions++
	if !c.startedAt.IsZero() {
		c.lastElapsed = time.Since(c.startedAt)
	}
	c.running = false
}

func (c *JobContext) SetName(name string)        { c.name = name }
func (c *JobContext) SetDisabled(disabled bool)   { c.disabled = disabled }
func (c *JobContext) SetImmediate(immediate bool) { c.immediate = immediate }
func (c *JobContext) SetLastTick(t time.Time)     { c.lastTick = t }
func (c *JobContext) SetData(data any)            { c.data = data }

// SetRemainingTicks bounds the number of remaining executions. A fused
// context stays fused.
func (c *JobContext) SetRemainingTicks(n int) {
	if c.IsFused() {
		return
	}
	if n < 0 {
		n = 0
	}
	if c.bounded && n > c.remaining {
		n = c.remaining
	}
	c.bounded = true
	c.remaining = n
}

func (c *JobContext) ID() uuid.UUID     { return c.id }
func (c *JobContext) Name() string      { return c.name }
func (c *JobContext) IsDisabled() bool  { return c.disabled }
func (c *JobContext) IsImmediate() bool { return c.immediate }
func (c *JobContext) IsRunning() bool   { return c.running }
func (c *JobContext) Data() any         { return c.data }

// IsFused reports whether a bounded run count has been used up.
func (c *JobContext) IsFused() bool { return c.bounded && c.remaining == 0 }

// RemainingTicks returns the remaining run count; ok is false when unbounded.
func (c *JobContext) RemainingTicks() (n int, ok bool) { return c.remaining, c.bounded }

// LastTick returns the last observed tick; ok is false before the first tick.
func (c *JobContext) LastTick() (t time.Time, ok bool) { return c.lastTick, !c.lastTick.IsZero() }

// Executions counts completed runs.
func (c *JobContext) Executions() uint64 { return c.executions }

// LastElapsed is the wall time taken by the most recent completed run.
func (c *JobContext) LastElapsed() time.Duration { return c.lastElapsed }

// label is the name used in logs and events.
func (c *JobContext) label() string {
	if c.name != "" {
		return c.name
	}
	return c.id.String()
}
