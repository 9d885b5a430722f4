package notifier

import (
	"fmt"
	"strings"
	"time"

	"cronloop/internal/eventbus"
	"cronloop/internal/schedule"
)

// Format renders an event as one line of text. It returns "" for events that
// carry no job payload.
func Format(e eventbus.Event) string {
	je, ok := e.Data.(schedule.JobEvent)
	if !ok {
		return ""
	}
	name := je.Name
	if name == "" {
		name = je.ID.String()
	}

	var b strings.Builder
	switch e.Type {
	case schedule.EventPanicked:
		b.WriteString("🚨 ")
	case schedule.EventFused:
		b.WriteString("🏁 ")
	case schedule.EventRemoved:
		b.WriteString("🗑 ")
	}
	fmt.Fprintf(&b, "%s [%s] %s", name, je.Expr, strings.TrimPrefix(e.Type, "job."))
	if je.Manual {
		b.WriteString(" (manual)")
	}
	if e.Type == schedule.EventFinished || e.Type == schedule.EventPanicked {
		fmt.Fprintf(&b, " run #%d", je.Executions)
		if je.Elapsed > 0 {
			fmt.Fprintf(&b, " in %s", je.Elapsed.Round(time.Millisecond))
		}
	}
	if je.Remaining >= 0 {
		fmt.Fprintf(&b, ", %d left", je.Remaining)
	}
	if je.Detail != "" {
		b.WriteString(": ")
		b.WriteString(je.Detail)
	}
	return b.String()
}
