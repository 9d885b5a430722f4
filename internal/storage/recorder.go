package storage

import (
	"context"
	"time"

	"cronloop/internal/eventbus"
	"cronloop/internal/schedule"
	logx "cronloop/pkg/logx"
)

// RecordedEvents are the job events written to history.
var RecordedEvents = []string{
	schedule.EventFinished,
	schedule.EventPanicked,
	schedule.EventFused,
	schedule.EventRemoved,
}

// Recorder appends job lifecycle events from a bus to a Store.
type Recorder struct {
	store   Store
	log     logx.Logger
	timeout time.Duration
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, timeout: 2 * time.Second}
}

// Start subscribes to bus and records events on a new goroutine until ctx is
// done. The subscription is in place when Start returns. The returned channel
// is closed once the goroutine exits.
func (r *Recorder) Start(ctx context.Context, bus eventbus.Bus) <-chan struct{} {
	events, unsubscribe := bus.Subscribe(256, RecordedEvents...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				r.record(ctx, e)
			}
		}
	}()
	return done
}

func (r *Recorder) record(ctx context.Context, e eventbus.Event) {
	rec, ok := RecordFromEvent(e)
	if !ok {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.AppendRun(actx, rec); err != nil {
		r.log.Warn("run history append failed", logx.String("event", e.Type), logx.String("job", rec.JobName), logx.Err(err))
	}
}

// RecordFromEvent converts a scheduler event. ok is false for events that do
// not carry a job payload.
func RecordFromEvent(e eventbus.Event) (RunRecord, bool) {
	je, ok := e.Data.(schedule.JobEvent)
	if !ok {
		return RunRecord{}, false
	}
	return RunRecord{
		At:         e.Time,
		JobID:      je.ID.String(),
		JobName:    je.Name,
		Event:      e.Type,
		Manual:     je.Manual,
		Elapsed:    je.Elapsed,
		Executions: je.Executions,
		Remaining:  je.Remaining,
		Detail:     je.Detail,
	}, true
}
