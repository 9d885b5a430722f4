package schedule

import (
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Source produces the occurrences of a schedule.
type Source interface {
	// Occurrences yields activation instants strictly after the reference,
	// ascending. The sequence is lazy and restartable; it ends only when the
	// schedule has no further activation.
	Occurrences(after time.Time) iter.Seq[time.Time]
	String() string
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type cronSource struct {
	expr  string
	sched cron.Schedule
}

// ParseSource parses a cron expression into a Source. Errors are marked with
// ErrInvalidCron.
func ParseSource(expr string) (Source, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.Mark(errors.New("cron expression required"), ErrInvalidCron)
	}
	sched, err := parser.Parse(e)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid cron expression %q", e), ErrInvalidCron)
	}
	return &cronSource{expr: e, sched: sched}, nil
}

func (s *cronSource) Occurrences(after time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		t := after
		for {
			// robfig/cron reports "no activation within five years" as zero time.
			t = s.sched.Next(t)
			if t.IsZero() {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}

func (s *cronSource) String() string { return s.expr }

// First returns the first occurrence of src strictly after t.
func First(src Source, t time.Time) (time.Time, bool) {
	for next := range src.Occurrences(t) {
		return next, true
	}
	return time.Time{}, false
}

// Upcoming returns at most n occurrences of src strictly after t.
func Upcoming(src Source, t time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	for next := range src.Occurrences(t) {
		out = append(out, next)
		if len(out) == n {
			break
		}
	}
	return out
}
