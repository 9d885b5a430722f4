// Package driver runs the loop that keeps a scheduler ticking: sleep for as
// long as the scheduler says nothing is due, then tick.
package driver

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/time/rate"

	logx "cronloop/pkg/logx"
)

// Scheduler is the part of schedule.Scheduler the loop needs.
type Scheduler interface {
	TimeTillNextJob() (time.Duration, bool)
	Tick(ctx context.Context)
}

const (
	DefaultMinTick  = 50 * time.Millisecond
	DefaultMaxSleep = time.Minute
	DefaultFallback = time.Second
)

type Config struct {
	// MinTick is the minimum spacing between two ticks.
	MinTick time.Duration
	// MaxSleep bounds a single wait so wall clock jumps are noticed.
	MaxSleep time.Duration
	// Fallback is the wait used when the scheduler cannot size one.
	Fallback time.Duration
	// Notify sends sd_notify READY, WATCHDOG and STOPPING.
	Notify bool
}

func (c Config) withDefaults() Config {
	if c.MinTick <= 0 {
		c.MinTick = DefaultMinTick
	}
	if c.MaxSleep <= 0 {
		c.MaxSleep = DefaultMaxSleep
	}
	c.MaxSleep = max(c.MaxSleep, c.MinTick)
	if c.Fallback <= 0 {
		c.Fallback = DefaultFallback
	}
	return c
}

type Option func(*Driver)

// WithNotifier replaces the sd_notify call.
func WithNotifier(fn func(state string) (bool, error)) Option {
	return func(d *Driver) {
		if fn != nil {
			d.sdNotify = fn
		}
	}
}

// WithWatchdog replaces the lookup of the systemd watchdog interval.
func WithWatchdog(fn func() (time.Duration, error)) Option {
	return func(d *Driver) {
		if fn != nil {
			d.watchdog = fn
		}
	}
}

type Driver struct {
	s   Scheduler
	cfg Config
	log logx.Logger

	limiter *rate.Limiter
	wake    chan struct{}

	sdNotify func(state string) (bool, error)
	watchdog func() (time.Duration, error)

	ticks  atomic.Uint64
	panics atomic.Uint64
}

func New(s Scheduler, cfg Config, log logx.Logger, opts ...Option) *Driver {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Driver{
		s:       s,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(cfg.MinTick), 1),
		wake:    make(chan struct{}, 1),
		sdNotify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Wake makes a sleeping loop re-ask the scheduler for the next wait. Call it
// after adding jobs.
func (d *Driver) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) Ticks() uint64 { return d.ticks.Load() }

// Run drives the scheduler until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	var wd time.Duration
	if d.cfg.Notify {
		d.notify(daemon.SdNotifyReady)
		defer d.notify(daemon.SdNotifyStopping)
		if v, err := d.watchdog(); err != nil {
			d.log.Warn("systemd watchdog lookup failed", logx.Err(err))
		} else {
			wd = v / 2
		}
	}
	d.log.Info("driver started",
		logx.Duration("min_tick", d.cfg.MinTick),
		logx.Duration("max_sleep", d.cfg.MaxSleep),
		logx.Duration("watchdog", wd))

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		wait := d.nextWait()
		if wd > 0 {
			wait = min(wait, wd)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			d.log.Info("driver stopped", logx.Uint64("ticks", d.ticks.Load()))
			return nil
		case <-d.wake:
			continue
		case <-timer.C:
		}

		if err := d.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.log.Warn("tick rate limit wait failed", logx.Err(err))
		}
		d.tick(ctx)
		if wd > 0 {
			d.notify(daemon.SdNotifyWatchdog)
		}
	}
}

// nextWait sizes the sleep before the next tick.
func (d *Driver) nextWait() time.Duration {
	wait, ok := d.s.TimeTillNextJob()
	if !ok {
		wait = d.cfg.Fallback
	}
	return min(max(wait, d.cfg.MinTick), d.cfg.MaxSleep)
}

func (d *Driver) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("tick panicked",
				logx.String("panic", fmt.Sprint(r)),
				logx.Stack(string(debug.Stack())))
		}
	}()
	d.s.Tick(ctx)
	d.ticks.Add(1)
}

func (d *Driver) notify(state string) {
	sent, err := d.sdNotify(state)
	if err != nil {
		d.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	d.log.Trace("sd_notify", logx.String("state", state), logx.Bool("sent", sent))
}
