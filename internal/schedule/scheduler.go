package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cronloop/internal/eventbus"
	logx "cronloop/pkg/logx"
)

// DefaultPollInterval is the wait hinted to the driver when no job can say
// when it is next due.
const DefaultPollInterval = 500 * time.Millisecond

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) {
		if !log.IsZero() {
			s.log = log
		}
	}
}

func WithBus(bus eventbus.Bus) Option { return func(s *Scheduler) { s.bus = bus } }

// WithClock replaces time.Now. Tests use it to drive simulated time.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// Scheduler owns a set of jobs and advances them on Tick.
//
// Registry operations are safe from any goroutine, including while a sweep
// is running: a sweep works on a snapshot taken when it starts. Sweeps
// (Tick and Execute) are serialized with each other. Bodies run one at a
// time in registration order.
type Scheduler struct {
	mu   sync.Mutex
	jobs []*Job

	sweep sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	clock func() time.Time
	loc   *time.Location
	poll  time.Duration
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:   logx.Nop(),
		clock: time.Now,
		loc:   time.Local,
		poll:  DefaultPollInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) now() time.Time { return s.clock().In(s.loc) }

// Location returns the time zone cron expressions are evaluated in.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Add registers j and returns its identifier. A job belongs to at most one
// scheduler.
func (s *Scheduler) Add(j *Job) uuid.UUID {
	j.attach(s.now, s.log, s.bus)

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	n := len(s.jobs)
	s.mu.Unlock()

	j.publish(EventAdded)
	args := []logx.Field{
		logx.String("job", j.Name()),
		logx.String("id", j.ID().String()),
		logx.String("expr", j.Expr()),
		logx.Int("jobs", n),
	}
	if next := s.previewNextRuns(j, 4); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("job registered", args...)
	return j.ID()
}

// Remove unregisters the job with id. It reports whether a job was removed.
func (s *Scheduler) Remove(id uuid.UUID) bool {
	j, ok := s.take(id)
	if !ok {
		return false
	}
	j.publish(EventRemoved)
	s.log.Debug("job removed", logx.String("job", j.Name()), logx.String("id", id.String()))
	return true
}

func (s *Scheduler) take(id uuid.UUID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID() == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return j, true
		}
	}
	return nil, false
}

// Get returns the job with id. The returned job is live: mutate it through
// Update, Pause or Resume.
func (s *Scheduler) Get(id uuid.UUID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID() == id {
			return j, true
		}
	}
	return nil, false
}

// FindByName returns the first job registered under name.
func (s *Scheduler) FindByName(name string) (*Job, bool) {
	for _, j := range s.Jobs() {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// IsReady reports whether any job is registered.
func (s *Scheduler) IsReady() bool { return s.Len() > 0 }

// TimeTillNextJob returns how long the driver should wait before the next
// Tick: the smallest gap between now and any job's next occurrence.
//
// With no jobs, or when no job has a further occurrence, it returns the poll
// interval so the driver keeps polling for new jobs. ok is false when the
// wait cannot be represented; the driver should use its own cadence.
func (s *Scheduler) TimeTillNextJob() (d time.Duration, ok bool) {
	jobs := s.Jobs()
	if len(jobs) == 0 {
		return s.poll, true
	}
	now := s.now()
	found := false
	for _, j := range jobs {
		next, has := j.Next(now)
		if !has {
			continue
		}
		gap := next.Sub(now)
		if !found || gap < d {
			d = gap
			found = true
		}
	}
	if !found {
		return s.poll, true
	}
	if d < 0 {
		return 0, false
	}
	return d, true
}

// Tick advances every job to now, running due occurrences, and then removes
// the jobs that fused during the sweep.
func (s *Scheduler) Tick(ctx context.Context) {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	var fused []*Job
	for _, j := range s.Jobs() {
		s.tickOne(ctx, j)
		if j.IsFused() {
			fused = append(fused, j)
		}
	}
	for _, j := range fused {
		// a concurrent Remove already reported the job gone
		if _, ok := s.take(j.ID()); ok {
			j.publish(EventFused)
			j.publish(EventRemoved)
			s.log.Info("job fused; removed", logx.String("job", j.Name()), logx.String("id", j.ID().String()))
		}
	}
}

func (s *Scheduler) tickOne(ctx context.Context, j *Job) {
	defer s.recoverJob(j, "tick")
	j.Tick(ctx, s.now())
}

// Execute runs every job once, in registration order, ignoring schedules and
// disabled flags. Fused jobs are not removed.
func (s *Scheduler) Execute(ctx context.Context) {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	for _, j := range s.Jobs() {
		s.executeOne(ctx, j)
	}
}

func (s *Scheduler) executeOne(ctx context.Context, j *Job) {
	defer s.recoverJob(j, "execute")
	j.Execute(ctx)
}

// recoverJob keeps one broken job from aborting the whole sweep.
func (s *Scheduler) recoverJob(j *Job, op string) {
	if r := recover(); r != nil {
		s.log.Error("job sweep panicked",
			logx.String("op", op),
			logx.String("id", j.ID().String()),
			logx.String("expr", j.Expr()),
			logx.String("panic", fmt.Sprint(r)),
			logx.Stack(string(debug.Stack())))
	}
}

// Snapshot returns a view of every job in registration order.
func (s *Scheduler) Snapshot() []JobInfo {
	now := s.now()
	jobs := s.Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Info(now))
	}
	return out
}

// previewNextRuns returns a short list of upcoming run times, only computed
// when debug logging is on.
func (s *Scheduler) previewNextRuns(j *Job, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	var b strings.Builder
	for i, t := range Upcoming(j.source, s.now(), n) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
