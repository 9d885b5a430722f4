// Package systemdmanager inspects and restarts systemd units over D-Bus.
package systemdmanager

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnsupported = errors.New("systemdmanager: unsupported OS (linux only)")
	ErrClosed      = errors.New("systemd connection is closed")
)

// UnitStatus is the state of one unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, activating, ...
	SubState    string // running, dead, ...
	LoadState   string // loaded, not-found, ...
	Description string

	ActiveExit    time.Time // ActiveExitTimestamp
	InactiveSince time.Time // InactiveEnterTimestamp
	StateChange   time.Time // StateChangeTimestamp
}

func (s UnitStatus) NotFound() bool { return s.LoadState == "not-found" }

// Down reports whether the unit exists and is neither running nor
// transitioning.
func (s UnitStatus) Down() bool {
	return !s.NotFound() && (s.Active == "failed" || s.Active == "inactive")
}

// DownSince is the best estimate of when the unit stopped; zero if unknown.
func (s UnitStatus) DownSince() time.Time {
	for _, t := range []time.Time{s.InactiveSince, s.ActiveExit, s.StateChange} {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// UnitName appends ".service" to names without a unit type suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range []string{".service", ".timer", ".socket", ".target", ".mount", ".path"} {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	return name + ".service"
}

func statusFromProps(unit string, props map[string]any) UnitStatus {
	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	return UnitStatus{
		Name:          unit,
		Active:        str("ActiveState"),
		SubState:      str("SubState"),
		LoadState:     str("LoadState"),
		Description:   str("Description"),
		ActiveExit:    parseTimestamp(props, "ActiveExitTimestamp"),
		InactiveSince: parseTimestamp(props, "InactiveEnterTimestamp"),
		StateChange:   parseTimestamp(props, "StateChangeTimestamp"),
	}
}

// systemd timestamps are microseconds since the Unix epoch.
func parseTimestamp(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func isNoSuchUnitErr(err error) bool {
	// systemd returns org.freedesktop.systemd1.NoSuchUnit for missing units.
	return err != nil && strings.Contains(err.Error(), "NoSuchUnit")
}
