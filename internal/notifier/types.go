package notifier

import (
	"context"
	"time"

	"cronloop/internal/schedule"
)

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Config controls delivery.
type Config struct {
	Enabled  bool
	ChatID   int64
	ThreadID int
	// Events lists the event types to forward; empty means DefaultEvents.
	Events     []string
	RatePerSec int
	QueueSize  int
	RetryMax   int
	RetryBase  time.Duration
}

// DefaultEvents are forwarded when Config.Events is empty.
var DefaultEvents = []string{schedule.EventPanicked, schedule.EventFused}

type HistoryItem struct {
	At   time.Time
	Text string
}
