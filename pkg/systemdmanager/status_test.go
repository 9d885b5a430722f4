package systemdmanager

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestUnitName(t *testing.T) {
	assert.Equal(t, "nginx.service", UnitName("nginx"))
	assert.Equal(t, "nginx.service", UnitName(" nginx.service "))
	assert.Equal(t, "backup.timer", UnitName("backup.timer"))
}

func TestStatusFromProps(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	st := statusFromProps("app.service", map[string]any{
		"ActiveState":            "failed",
		"SubState":               "failed",
		"LoadState":              "loaded",
		"Description":            "App",
		"InactiveEnterTimestamp": uint64(at.UnixMicro()),
		"ActiveExitTimestamp":    uint64(0),
	})
	assert.Equal(t, "app.service", st.Name)
	assert.True(t, st.Down())
	assert.False(t, st.NotFound())
	assert.True(t, st.DownSince().Equal(at))
	assert.True(t, st.ActiveExit.IsZero())
}

func TestUnitStatusDown(t *testing.T) {
	assert.False(t, UnitStatus{Active: "active"}.Down())
	assert.False(t, UnitStatus{Active: "activating"}.Down())
	assert.True(t, UnitStatus{Active: "inactive", LoadState: "loaded"}.Down())
	assert.False(t, UnitStatus{Active: "inactive", LoadState: "not-found"}.Down())
	assert.True(t, UnitStatus{}.DownSince().IsZero())
}

func TestIsNoSuchUnitErr(t *testing.T) {
	assert.True(t, isNoSuchUnitErr(errors.New("org.freedesktop.systemd1.NoSuchUnit: Unit x.service not loaded.")))
	assert.False(t, isNoSuchUnitErr(errors.New("access denied")))
	assert.False(t, isNoSuchUnitErr(nil))
}
