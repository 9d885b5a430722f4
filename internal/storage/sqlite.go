package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	logx "cronloop/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	log.Debug("sqlite storage opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at_ms, job_id, job_name, event, manual, elapsed_ns, executions, remaining, detail)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.At.UnixMilli(), r.JobID, nullStr(r.JobName), r.Event, r.Manual,
		int64(r.Elapsed), int64(r.Executions), r.Remaining, nullStr(r.Detail),
	)
	return errors.Wrap(err, "append run")
}

func (s *sqliteStore) RecentRuns(ctx context.Context, q Query) ([]RunRecord, error) {
	query := `SELECT at_ms, job_id, job_name, event, manual, elapsed_ns, executions, remaining, detail
		FROM runs WHERE (? = '' OR job_name = ?) AND (? = '' OR event = ?)
		ORDER BY at_ms DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, q.JobName, q.JobName, q.Event, q.Event, q.limit())
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r               RunRecord
			atMS, elapsed   int64
			executions      int64
			jobName, detail sql.NullString
		)
		if err := rows.Scan(&atMS, &r.JobID, &jobName, &r.Event, &r.Manual, &elapsed, &executions, &r.Remaining, &detail); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.At = time.UnixMilli(atMS)
		r.JobName = jobName.String
		r.Elapsed = time.Duration(elapsed)
		r.Executions = uint64(executions)
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE at_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "prune runs")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
