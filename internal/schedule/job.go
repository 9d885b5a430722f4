package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cronloop/internal/eventbus"
	logx "cronloop/pkg/logx"
)

// Runner is a job body. It may block; the scheduler waits for it to return
// before considering the next occurrence or job.
type Runner interface {
	Run(ctx context.Context, jc *JobContext)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, jc *JobContext)

func (f RunnerFunc) Run(ctx context.Context, jc *JobContext) { f(ctx, jc) }

// Job binds a JobContext to a schedule and a body.
//
// Runs of one job are serialized. Mutate a job that may be ticking through
// Update, Pause or Resume; a Runner mutates its own context directly.
// Readers (Name, IsFused, Info) never wait for a running body: they see the
// state as of the last mutation, run start or run end.
type Job struct {
	mu     sync.Mutex
	jc     *JobContext
	source Source
	run    Runner

	// view is refreshed under mu and read without it.
	view atomic.Pointer[JobInfo]

	// set when the job is added to a Scheduler
	clock func() time.Time
	log   logx.Logger
	bus   eventbus.Bus
}

// New parses expr and returns a job running run. An invalid expression is
// returned as an error marked with ErrInvalidCron.
func New(expr string, run Runner) (*Job, error) {
	src, err := ParseSource(expr)
	if err != nil {
		return nil, err
	}
	return NewWithSource(src, run), nil
}

// MustNew is New but panics on an invalid expression.
func MustNew(expr string, run Runner) *Job {
	j, err := New(expr, run)
	if err != nil {
		panic(fmt.Sprintf("schedule: %v", err))
	}
	return j
}

// NewWithSource returns a job driven by an already-built Source.
func NewWithSource(src Source, run Runner) *Job {
	if run == nil {
		run = RunnerFunc(func(context.Context, *JobContext) {})
	}
	j := &Job{
		jc:     NewJobContext(),
		source: src,
		run:    run,
		clock:  time.Now,
		log:    logx.Nop(),
	}
	j.refreshLocked()
	return j
}

// ---- builder ----

func (j *Job) Named(name string) *Job {
	return j.with(func(jc *JobContext) { jc.SetName(name) })
}

func (j *Job) WithData(data any) *Job {
	return j.with(func(jc *JobContext) { jc.SetData(data) })
}

func (j *Job) MaxTicks(n int) *Job {
	return j.with(func(jc *JobContext) { jc.SetRemainingTicks(n) })
}

// Once limits the job to a single execution.
func (j *Job) Once() *Job { return j.MaxTicks(1) }

func (j *Job) Disable(disabled bool) *Job {
	return j.with(func(jc *JobContext) { jc.SetDisabled(disabled) })
}

// Immediate makes the job run on its first tick regardless of the schedule.
func (j *Job) Immediate(immediate bool) *Job {
	return j.with(func(jc *JobContext) { jc.SetImmediate(immediate) })
}

func (j *Job) with(fn func(jc *JobContext)) *Job {
	j.Update(fn)
	return j
}

// ---- runtime ----

// Pause disables the job. Occurrences due while paused are skipped.
func (j *Job) Pause() { j.Update(func(jc *JobContext) { jc.SetDisabled(true) }) }

// Resume enables the job.
func (j *Job) Resume() { j.Update(func(jc *JobContext) { jc.SetDisabled(false) }) }

// Update runs fn with exclusive access to the job context.
func (j *Job) Update(fn func(jc *JobContext)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.refreshLocked()
	fn(j.jc)
}

// Tick runs every occurrence that became due between the previous tick and
// now, in order, and then records now as the last tick.
//
// The first tick only anchors the window, unless the job is immediate, in
// which case the body runs once. The anchor moves to now even when the
// source panics.
func (j *Job) Tick(ctx context.Context, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	jc := j.jc
	defer func() {
		jc.SetLastTick(now)
		j.refreshLocked()
	}()
	if last, ok := jc.LastTick(); ok {
		for occ := range j.source.Occurrences(last) {
			if occ.After(now) || jc.IsFused() {
				break
			}
			if !jc.IsDisabled() {
				j.runLocked(ctx, false)
			}
		}
	} else if !jc.IsDisabled() && jc.IsImmediate() && !jc.IsFused() {
		j.runLocked(ctx, false)
	}
}

// Execute runs the body once, ignoring the schedule and the disabled flag.
func (j *Job) Execute(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	defer j.refreshLocked()
	j.runLocked(ctx, true)
	j.jc.SetLastTick(j.clock())
}

func (j *Job) runLocked(ctx context.Context, manual bool) {
	jc := j.jc
	jc.Start()
	j.refreshLocked()
	j.publishLocked(EventStarted, manual, "")
	defer func() {
		detail := ""
		if r := recover(); r != nil {
			detail = fmt.Sprint(r)
			j.log.Error("job panicked",
				logx.String("job", jc.label()),
				logx.String("panic", detail),
				logx.Stack(string(debug.Stack())))
		}
		jc.Finish()
		j.refreshLocked()
		if detail != "" {
			j.publishLocked(EventPanicked, manual, detail)
		}
		j.publishLocked(EventFinished, manual, "")
		j.log.Debug("job finished",
			logx.String("job", jc.label()),
			logx.Bool("manual", manual),
			logx.Uint64("executions", jc.Executions()),
			logx.Duration("took", jc.LastElapsed()))
	}()
	j.run.Run(ctx, jc)
}

// ---- readers ----

func (j *Job) ID() uuid.UUID { return j.jc.ID() }

func (j *Job) Name() string { return j.view.Load().Name }

func (j *Job) Expr() string { return j.source.String() }

func (j *Job) IsFused() bool { return j.view.Load().Fused }

// Context returns the job context. Reading it while the job may be ticking
// on another goroutine races; use Update or Info instead.
func (j *Job) Context() *JobContext { return j.jc }

// Next returns the first occurrence strictly after t.
func (j *Job) Next(t time.Time) (time.Time, bool) { return First(j.source, t) }

// JobInfo is a point-in-time view of a job.
type JobInfo struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Expr        string        `json:"expr"`
	Disabled    bool          `json:"disabled"`
	Immediate   bool          `json:"immediate"`
	Fused       bool          `json:"fused"`
	Remaining   int           `json:"remaining"` // -1 when unbounded
	LastTick    time.Time     `json:"last_tick"`
	Next        time.Time     `json:"next"`
	Executions  uint64        `json:"executions"`
	LastElapsed time.Duration `json:"last_elapsed"`
}

// Info returns the latest view of the job. Next is computed relative to now.
func (j *Job) Info(now time.Time) JobInfo {
	info := *j.view.Load()
	info.Next, _ = j.Next(now)
	return info
}

func (j *Job) refreshLocked() {
	jc := j.jc
	info := JobInfo{
		ID:          jc.ID(),
		Name:        jc.Name(),
		Expr:        j.source.String(),
		Disabled:    jc.IsDisabled(),
		Immediate:   jc.IsImmediate(),
		Fused:       jc.IsFused(),
		Remaining:   -1,
		Executions:  jc.Executions(),
		LastElapsed: jc.LastElapsed(),
	}
	if n, ok := jc.RemainingTicks(); ok {
		info.Remaining = n
	}
	info.LastTick, _ = jc.LastTick()
	j.view.Store(&info)
}

func (j *Job) attach(clock func() time.Time, log logx.Logger, bus eventbus.Bus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.clock = clock
	j.log = log
	j.bus = bus
}
