package config

import (
	"net"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"cronloop/internal/debugserver"
	"cronloop/internal/schedule"
)

// Storage drivers.
const (
	DriverNone   = "none"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

var logLevels = []string{"", "trace", "debug", "info", "warn", "warning", "error"}

// Validate checks cfg for values that would fail at wiring time. It reports
// every problem found, not just the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !slices.Contains(logLevels, strings.ToLower(strings.TrimSpace(cfg.Logging.Level))) {
		add(errors.Newf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	_, err := cfg.Scheduler.Location()
	add(err)
	_, err = ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	add(err)
	_, err = ParseDurationField("scheduler.min_tick_interval", cfg.Scheduler.MinTickInterval)
	add(err)

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", DriverNone:
	case DriverFile, DriverSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.Newf("storage.path: required for driver %q", d))
		}
	default:
		add(errors.Newf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)
	_, err = ParseDurationField("storage.retention", cfg.Storage.Retention)
	add(err)

	tg := cfg.Notifier.Telegram
	if tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add(errors.New("notifier.telegram.token: required when enabled"))
		}
		if tg.ChatID == 0 {
			add(errors.New("notifier.telegram.chat_id: required when enabled"))
		}
	}
	if tg.RatePerSec < 0 {
		add(errors.New("notifier.telegram.rate_per_sec: must be >= 0"))
	}
	for _, ev := range tg.Events {
		if !slices.Contains(schedule.EventTypes, ev) {
			add(errors.Newf("notifier.telegram.events: unknown event %q", ev))
		}
	}

	if dbg := cfg.Debug; strings.TrimSpace(dbg.Addr) != "" {
		if _, _, err := net.SplitHostPort(dbg.Addr); err != nil {
			add(errors.Wrapf(err, "debug.addr"))
		} else {
			add(debugserver.CheckBind(debugserver.Config{Addr: dbg.Addr, Token: dbg.Token, AllowInsecure: dbg.AllowInsecure}))
		}
	}

	for _, name := range cfg.JobNames() {
		spec := cfg.Jobs[name]
		if strings.TrimSpace(name) == "" {
			add(errors.New("jobs: empty job name"))
		}
		if strings.TrimSpace(spec.Kind) == "" {
			add(errors.Newf("jobs.%s.kind: required", name))
		}
		if _, err := schedule.ParseSource(spec.Cron); err != nil {
			add(errors.Wrapf(err, "jobs.%s.cron", name))
		}
		if spec.MaxTicks != nil && *spec.MaxTicks < 0 {
			add(errors.Newf("jobs.%s.max-ticks: must be >= 0", name))
		}
	}

	return errors.Join(errs...)
}

// JobNames returns the job table keys, sorted.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Location resolves the configured time zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "scheduler.timezone: unknown zone %q", tz)
	}
	return loc, nil
}
