package config

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	logx "cronloop/pkg/logx"
)

// JobChanges lists job names by how they differ between two configs.
type JobChanges struct {
	Added   []string
	Removed []string
	// Changed jobs keep their name but differ in kind, cron or params, or
	// had their run limit raised or lifted. They are rebuilt.
	Changed []string
	// Toggled jobs differ only in disable, immediate or a lowered run limit.
	// They are updated in place.
	Toggled []string
}

func (c JobChanges) Empty() bool {
	return len(c.Added)+len(c.Removed)+len(c.Changed)+len(c.Toggled) == 0
}

// SummarizeChange returns the changed sections, safe fields for logging
// (never secrets like tokens) and the per-job differences.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, JobChanges) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.poll_interval", newCfg.Scheduler.PollInterval),
			logx.String("scheduler.min_tick_interval", newCfg.Scheduler.MinTickInterval),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.retention", newCfg.Storage.Retention),
		)
	}
	// never log the token
	ot, nt := oldCfg.Notifier.Telegram, newCfg.Notifier.Telegram
	if ot.Enabled != nt.Enabled || ot.Token != nt.Token || ot.ChatID != nt.ChatID ||
		ot.ThreadID != nt.ThreadID || ot.RatePerSec != nt.RatePerSec ||
		!reflect.DeepEqual(ot.Events, nt.Events) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.telegram.enabled", nt.Enabled),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Int("notifier.telegram.event_count", len(nt.Events)),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
			logx.Bool("debug.pprof", newCfg.Debug.Pprof),
		)
	}

	jobs := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if !jobs.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.count", len(newCfg.Jobs)),
			logx.Int("jobs.added", len(jobs.Added)),
			logx.Int("jobs.removed", len(jobs.Removed)),
			logx.Int("jobs.changed", len(jobs.Changed)),
			logx.Int("jobs.toggled", len(jobs.Toggled)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobs
}

func diffJobs(oldM, newM map[string]JobSpec) JobChanges {
	var out JobChanges
	for name, o := range oldM {
		n, ok := newM[name]
		switch {
		case !ok:
			out.Removed = append(out.Removed, name)
		case o.Kind != n.Kind || strings.TrimSpace(o.Cron) != strings.TrimSpace(n.Cron) || !sameParams(o.Params, n.Params),
			boundRaised(o, n):
			out.Changed = append(out.Changed, name)
		case o.Disable != n.Disable || o.Immediate != n.Immediate || o.Once != n.Once || !sameTicks(o.MaxTicks, n.MaxTicks):
			out.Toggled = append(out.Toggled, name)
		}
	}
	for name := range newM {
		if _, ok := oldM[name]; !ok {
			out.Added = append(out.Added, name)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	sort.Strings(out.Toggled)
	return out
}

// runBound is the run limit a spec sets; ok is false when unbounded.
func runBound(s JobSpec) (n int, ok bool) {
	switch {
	case s.Once:
		return 1, true
	case s.MaxTicks != nil:
		return *s.MaxTicks, true
	default:
		return 0, false
	}
}

// boundRaised reports whether n allows more runs than o. A live job's bound
// only shrinks, so such an edit needs a rebuild to take effect.
func boundRaised(o, n JobSpec) bool {
	ob, obounded := runBound(o)
	nb, nbounded := runBound(n)
	if !obounded {
		return false
	}
	return !nbounded || nb > ob
}

func sameTicks(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameParams compares params ignoring formatting and key order.
func sameParams(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if len(a) > 0 {
		if err := json.Unmarshal(a, &va); err != nil {
			return false
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &vb); err != nil {
			return false
		}
	}
	return reflect.DeepEqual(va, vb)
}
