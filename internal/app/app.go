// Package app wires the daemon: config, logging, event bus, run history,
// notifications, the scheduler with its jobs and the driver loop.
package app

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"cronloop/internal/adapters/telegram"
	"cronloop/internal/config"
	"cronloop/internal/debugserver"
	"cronloop/internal/driver"
	"cronloop/internal/eventbus"
	"cronloop/internal/jobs"
	"cronloop/internal/notifier"
	"cronloop/internal/schedule"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store
	notif *notifier.Service
	sched *schedule.Scheduler
	drv   *driver.Driver
	sup   *Supervisor

	// mu guards env and applied across reloads.
	mu      sync.Mutex
	env     jobs.Env
	applied *config.Config
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, err := storageConfig(cfg)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return err
	}
	if a.store != nil {
		a.log.Info("run history enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	var sender notifier.Sender
	if tg := cfg.Notifier.Telegram; tg.Enabled {
		ad, err := telegram.New(telegram.Config{Token: strings.TrimSpace(tg.Token)}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		sender = ad
	}
	a.notif = notifier.New(notifierConfig(cfg), sender, log.With(logx.String("comp", "notifier")))

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}
	poll, err := config.ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	if err != nil {
		return err
	}
	a.sched = schedule.NewScheduler(
		schedule.WithLogger(log.With(logx.String("comp", "scheduler"))),
		schedule.WithBus(a.bus),
		schedule.WithLocation(loc),
		schedule.WithPollInterval(poll),
	)

	dc, err := driverConfig(cfg)
	if err != nil {
		return err
	}
	a.drv = driver.New(a.sched, dc, log.With(logx.String("comp", "driver")))

	a.env = jobs.Env{
		Log:       log.With(logx.String("comp", "jobs")),
		Store:     a.store,
		Retention: retention(cfg),
	}
	built, err := jobs.BuildAll(a.env, cfg)
	if err != nil {
		return err
	}
	for _, j := range built {
		a.sched.Add(j)
	}
	a.applied = cfg
	a.log.Info("jobs registered", logx.Int("count", len(built)), logx.String("tz", loc.String()))
	return nil
}

// Scheduler exposes the scheduler for inspection.
func (a *App) Scheduler() *schedule.Scheduler { return a.sched }

// Start runs every component under a supervisor derived from ctx.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.mu.Lock()
	dc := debugConfig(a.applied)
	a.mu.Unlock()

	a.sup = NewSupervisor(ctx, a.log.With(logx.String("comp", "supervisor")))
	sctx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	// Subscribers go first so no event from the first tick is missed.
	if a.store != nil {
		done := storage.NewRecorder(a.store, a.log.With(logx.String("comp", "history"))).Start(sctx, a.bus)
		a.sup.Go0("history", func(context.Context) { <-done })
	}
	if a.notif.Enabled() {
		done, err := a.notif.Start(sctx, a.bus)
		if err != nil {
			return err
		}
		a.sup.Go0("notifier", func(context.Context) { <-done })
	}
	events, unsubscribe := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsubscribe()
		a.logEvents(ctx, events)
	})

	reloads := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(reloads)
		a.reloadLoop(ctx, reloads)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	if dc.Addr != "" {
		srv := debugserver.New(dc, a.status, a.log.With(logx.String("comp", "debug")))
		a.sup.Go0("debug.http", func(ctx context.Context) {
			// optional endpoint; a failure here never stops the daemon
			if err := srv.Run(ctx); err != nil {
				a.log.Error("debug server failed", logx.Err(err))
			}
		})
	}
	a.sup.Go("driver", a.drv.Run)

	a.log.Info("started", logx.String("config", a.cfgm.Path()), logx.Int("jobs", a.sched.Len()))
	return nil
}

// Done is closed when the supervisor context ends (Stop or a fatal error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop stops every goroutine and releases storage and log files.
func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	a.log.Info("stopped", logx.Uint64("ticks", a.drv.Ticks()), logx.Uint64("events_dropped", a.bus.Dropped()))
	return errors.CombineErrors(err, a.close())
}

func (a *App) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	return errors.CombineErrors(err, a.logs.Close())
}

func (a *App) status() debugserver.Status {
	return debugserver.Status{
		Jobs:          a.sched.Snapshot(),
		Ticks:         a.drv.Ticks(),
		EventsDropped: a.bus.Dropped(),
	}
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type)}
			if je, ok := e.Data.(schedule.JobEvent); ok {
				fields = append(fields, logx.String("job", je.Name), logx.Uint64("executions", je.Executions))
			}
			a.log.Trace("event", fields...)
		}
	}
}
