package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one job lifecycle event. Keep it compact and schema-stable.
type RunRecord struct {
	At         time.Time     `json:"at"`
	JobID      string        `json:"job_id"`
	JobName    string        `json:"job_name,omitempty"`
	Event      string        `json:"event"`
	Manual     bool          `json:"manual,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
	Executions uint64        `json:"executions"`
	// Remaining is -1 for unbounded jobs.
	Remaining int    `json:"remaining"`
	Detail    string `json:"detail,omitempty"`
}

// Query selects run records. Zero values match everything.
type Query struct {
	JobName string
	Event   string
	// Limit caps the result; 0 means 100.
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

func (q Query) match(r RunRecord) bool {
	return (q.JobName == "" || r.JobName == q.JobName) && (q.Event == "" || r.Event == q.Event)
}

// Store is the run-history API.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns matching records, newest first.
	RecentRuns(ctx context.Context, q Query) ([]RunRecord, error)
	// PruneRuns deletes records older than before and reports how many.
	PruneRuns(ctx context.Context, before time.Time) (int, error)
	Close() error
}
