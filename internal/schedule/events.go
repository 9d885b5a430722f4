package schedule

import (
	"time"

	"github.com/google/uuid"

	"cronloop/internal/eventbus"
)

// Event types published on the bus.
const (
	EventAdded    = "job.added"
	EventStarted  = "job.started"
	EventFinished = "job.finished"
	EventPanicked = "job.panicked"
	EventFused    = "job.fused"
	EventRemoved  = "job.removed"
)

// EventTypes lists every event type the scheduler publishes.
var EventTypes = []string{EventAdded, EventStarted, EventFinished, EventPanicked, EventFused, EventRemoved}

// JobEvent is the payload of every scheduler event.
type JobEvent struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Expr string    `json:"expr"`

	// Manual is set for runs triggered by Execute.
	Manual bool `json:"manual,omitempty"`

	Executions uint64        `json:"executions"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
	// Remaining is -1 for unbounded jobs.
	Remaining int    `json:"remaining"`
	Detail    string `json:"detail,omitempty"`
}

func (j *Job) eventLocked(manual bool, detail string) JobEvent {
	jc := j.jc
	remaining := -1
	if n, ok := jc.RemainingTicks(); ok {
		remaining = n
	}
	ev := JobEvent{
		ID:         jc.ID(),
		Name:       jc.Name(),
		Expr:       j.source.String(),
		Manual:     manual,
		Executions: jc.Executions(),
		Remaining:  remaining,
		Detail:     detail,
	}
	if !jc.IsRunning() {
		ev.Elapsed = jc.LastElapsed()
	}
	return ev
}

func (j *Job) publishLocked(typ string, manual bool, detail string) {
	if j.bus == nil {
		return
	}
	j.bus.Publish(eventbus.Event{Type: typ, Time: j.clock(), Data: j.eventLocked(manual, detail)})
}

// publish sends a registry event built from the job's latest view. It does
// not wait for a running body, so the body itself may remove its job.
func (j *Job) publish(typ string) {
	if j.bus == nil {
		return
	}
	v := j.view.Load()
	j.bus.Publish(eventbus.Event{Type: typ, Time: j.clock(), Data: JobEvent{
		ID:         v.ID,
		Name:       v.Name,
		Expr:       v.Expr,
		Executions: v.Executions,
		Elapsed:    v.LastElapsed,
		Remaining:  v.Remaining,
	}})
}
