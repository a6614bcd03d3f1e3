package sim_test

import (
	"testing"
	"time"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapAt(tick uint32, x float64) sim.Snapshot {
	return sim.Snapshot{
		Tick:         tick,
		State:        sim.State{Position: mgl64.Vec3{x, 0, 0}},
		HasConverged: true,
	}
}

func TestHistoryRecordAndLookup(t *testing.T) {
	h := sim.NewHistory(8)

	_, ok := h.Snapshot(3)
	assert.False(t, ok, "empty slot must not answer")
	_, ok = h.Latest()
	assert.False(t, ok)

	in := messages.NewInputSample(3, mgl64.Vec3{1, 0, 0}, mgl64.Vec2{})
	h.Record(in, snapAt(3, 1.5))

	got, ok := h.Input(3)
	require.True(t, ok)
	assert.Equal(t, in, got)

	snap, ok := h.Snapshot(3)
	require.True(t, ok)
	assert.Equal(t, 1.5, snap.State.Position.X())

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(3), latest)

	// Same slot, different tick.
	_, ok = h.Snapshot(11)
	assert.False(t, ok)
}

func TestHistoryWraparound(t *testing.T) {
	const capacity = 16
	h := sim.NewHistory(capacity)

	for tick := uint32(0); tick <= capacity; tick++ {
		h.Record(messages.Neutral(tick), snapAt(tick, float64(tick)))
	}

	assert.Equal(t, capacity, h.Len())

	_, ok := h.Input(0)
	assert.False(t, ok, "oldest input must be overwritten")
	_, ok = h.Snapshot(0)
	assert.False(t, ok, "oldest snapshot must be overwritten")

	for tick := uint32(1); tick <= capacity; tick++ {
		snap, ok := h.Snapshot(tick)
		require.True(t, ok, "tick %d", tick)
		assert.Equal(t, float64(tick), snap.State.Position.X())
	}
}

func TestHistoryIgnoresUnconvergedSnapshot(t *testing.T) {
	h := sim.NewHistory(4)
	h.PutSnapshot(sim.Snapshot{Tick: 2})

	_, ok := h.Snapshot(2)
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestHistoryReset(t *testing.T) {
	h := sim.NewHistory(4)
	h.Record(messages.Neutral(1), snapAt(1, 1))
	h.Reset()

	_, ok := h.Snapshot(1)
	assert.False(t, ok)
	_, ok = h.Latest()
	assert.False(t, ok)
}

func TestSchedulerFiresOneTickPerHeartbeat(t *testing.T) {
	interval := time.Second / 60
	s := sim.NewScheduler(interval)

	assert.True(t, s.Heartbeat(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond-interval, s.Accumulated())

	// The backlog drains one tick per call.
	assert.True(t, s.Heartbeat(0))
	assert.True(t, s.Heartbeat(0))
	assert.False(t, s.Heartbeat(0))
}

func TestSchedulerRequiresStrictlyMoreThanInterval(t *testing.T) {
	interval := 10 * time.Millisecond
	s := sim.NewScheduler(interval)

	assert.False(t, s.Heartbeat(interval))
	assert.Equal(t, interval, s.Accumulated())
	assert.True(t, s.Heartbeat(time.Nanosecond))
	assert.Equal(t, time.Nanosecond, s.Accumulated())
}

func TestSchedulerIgnoresNegativeElapsed(t *testing.T) {
	s := sim.NewScheduler(time.Millisecond)
	assert.False(t, s.Heartbeat(-time.Second))
	assert.Zero(t, s.Accumulated())
}

func TestPoseEqual(t *testing.T) {
	a := sim.NewState(mgl64.Vec3{1, 2, 3}, 90)
	b := a
	b.Position = b.Position.Add(mgl64.Vec3{1e-6, 0, 0})

	tests := []struct {
		name      string
		b         sim.State
		tolerance float64
		want      bool
	}{
		{"identical exact", a, 0, true},
		{"drift exact", b, 0, false},
		{"drift within tolerance", b, 1e-4, true},
		{"far", sim.NewState(mgl64.Vec3{2, 2, 3}, 90), 1e-4, false},
		{"rotated", sim.NewState(mgl64.Vec3{1, 2, 3}, 0), 1e-4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sim.PoseEqual(a, tt.b, tt.tolerance))
		})
	}
}

func TestPoseDistanceTreatsNegatedQuaternionAsEqual(t *testing.T) {
	a := sim.NewState(mgl64.Vec3{}, 45)
	b := a
	b.Orientation = b.Orientation.Scale(-1)
	assert.InDelta(t, 0, sim.PoseDistance(a, b), 1e-12)
}
