//go:build linux

package systemdmanager

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager talks to the system instance of systemd.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

func New(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "connect to systemd")
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

// Status returns the state of name. Missing units are reported with
// LoadState "not-found" rather than an error.
func (m *Manager) Status(ctx context.Context, name string) (UnitStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return UnitStatus{}, ErrClosed
	}
	unit := UnitName(name)
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return UnitStatus{Name: unit, Active: "unknown", SubState: "not-found", LoadState: "not-found"}, nil
		}
		return UnitStatus{}, errors.Wrapf(err, "status of %s", unit)
	}
	return statusFromProps(unit, props), nil
}

// Restart restarts name and waits for the job to complete.
func (m *Manager) Restart(ctx context.Context, name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return ErrClosed
	}
	unit := UnitName(name)
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return errors.Wrapf(err, "restart %s", unit)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-done:
		if result != "done" {
			return errors.Newf("restart %s: job %s", unit, result)
		}
		return nil
	}
}
