package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	logx "cronloop/pkg/logx"
)

// fileStore appends run records to a JSON Lines file.
//
// Reads scan the whole file; it is meant for small histories kept in check by
// a prune-history job.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	log.Debug("file storage opened", logx.String("path", path))
	return &fileStore{log: log, path: path, f: f}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return f, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentRuns(ctx context.Context, q Query) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}

	var out []RunRecord
	err := s.scan(ctx, func(r RunRecord) {
		if q.match(r) {
			out = append(out, r)
		}
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	if n := q.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *fileStore) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrClosed
	}

	var keep []RunRecord
	pruned := 0
	err := s.scan(ctx, func(r RunRecord) {
		if r.At.Before(before) {
			pruned++
			return
		}
		keep = append(keep, r)
	})
	if err != nil || pruned == 0 {
		return 0, err
	}

	// rewrite to a sibling file and swap it in
	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, "create compacted history")
	}
	w := bufio.NewWriter(tf)
	enc := json.NewEncoder(w)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = tf.Close()
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tf.Close()
		return 0, err
	}
	if err := tf.Close(); err != nil {
		return 0, err
	}

	_ = s.f.Close()
	s.f = nil
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, errors.Wrap(err, "replace history")
	}
	if s.f, err = openAppend(s.path); err != nil {
		return 0, err
	}
	s.log.Debug("file storage compacted", logx.Int("pruned", pruned), logx.Int("kept", len(keep)))
	return pruned, nil
}

// scan decodes every record in the file. Undecodable lines (e.g. a torn
// final write) are skipped.
func (s *fileStore) scan(ctx context.Context, fn func(RunRecord)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal(line, &r); err != nil {
			s.log.Debug("skipping bad history line", logx.Err(err))
			continue
		}
		fn(r)
	}
	return sc.Err()
}
