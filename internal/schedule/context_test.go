package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobContextDefaults(t *testing.T) {
	jc := NewJobContext()
	assert.NotEqual(t, NewJobContext().ID(), jc.ID())
	assert.False(t, jc.IsDisabled())
	assert.False(t, jc.IsImmediate())
	assert.False(t, jc.IsFused())
	_, bounded := jc.RemainingTicks()
	assert.False(t, bounded)
	_, ticked := jc.LastTick()
	assert.False(t, ticked)
}

func TestJobContextFinishCountsDown(t *testing.T) {
	jc := NewJobContext()
	jc.SetRemainingTicks(2)

	jc.Start()
	assert.True(t, jc.IsRunning())
	jc.Finish()
	assert.False(t, jc.IsRunning())
	n, ok := jc.RemainingTicks()
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.False(t, jc.IsFused())

	jc.Start()
	jc.Finish()
	assert.True(t, jc.IsFused())

	// saturates at zero
	jc.Start()
	jc.Finish()
	n, _ = jc.RemainingTicks()
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(3), jc.Executions())
}

func TestJobContextUnboundedNeverFuses(t *testing.T) {
	jc := NewJobContext()
	for range 10 {
		jc.Start()
		jc.Finish()
	}
	assert.False(t, jc.IsFused())
	assert.Equal(t, uint64(10), jc.Executions())
}

func TestSetRemainingTicks(t *testing.T) {
	t.Run("zero fuses", func(t *testing.T) {
		jc := NewJobContext()
		jc.SetRemainingTicks(0)
		assert.True(t, jc.IsFused())
	})
	t.Run("negative clamps", func(t *testing.T) {
		jc := NewJobContext()
		jc.SetRemainingTicks(-4)
		assert.True(t, jc.IsFused())
	})
	t.Run("never raised", func(t *testing.T) {
		jc := NewJobContext()
		jc.SetRemainingTicks(2)
		jc.SetRemainingTicks(5)
		n, _ := jc.RemainingTicks()
		assert.Equal(t, 2, n)
		jc.SetRemainingTicks(1)
		n, _ = jc.RemainingTicks()
		assert.Equal(t, 1, n)
	})
	t.Run("fused stays fused", func(t *testing.T) {
		jc := NewJobContext()
		jc.SetRemainingTicks(0)
		jc.SetRemainingTicks(3)
		assert.True(t, jc.IsFused())
	})
}

func TestJobContextLastTickAndData(t *testing.T) {
	jc := NewJobContext()
	jc.SetLastTick(epoch)
	got, ok := jc.LastTick()
	require.True(t, ok)
	assert.True(t, got.Equal(epoch))

	jc.SetData(map[string]int{"a": 1})
	assert.Equal(t, map[string]int{"a": 1}, jc.Data())

	assert.Equal(t, jc.ID().String(), jc.label())
	jc.SetName("backup")
	assert.Equal(t, "backup", jc.label())
}

func TestJobContextElapsed(t *testing.T) {
	jc := NewJobContext()
	jc.Start()
	time.Sleep(2 * time.Millisecond)
	jc.Finish()
	assert.GreaterOrEqual(t, jc.LastElapsed(), 2*time.Millisecond)
}
