package network

import (
	"testing"

	"github.com/automoto/ticksync/shared/sim"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicatorWaitsForConvergence(t *testing.T) {
	rep := NewReplicator()
	spawn := sim.Snapshot{Tick: 0, State: sim.NewState(mgl64.Vec3{1, 0, 1}, 0)}

	assert.False(t, rep.Apply(3, spawn))
	_, ok := rep.Pose(3)
	assert.False(t, ok)

	rep.Receive(3, spawn)
	rep.Step()
	_, ok = rep.Pose(3)
	assert.False(t, ok, "unconverged snapshots are never shown")
}

func TestReplicatorApplyIsIdempotent(t *testing.T) {
	rep := NewReplicator()
	snap := authorityAt(9, mgl64.Vec3{4, 0, -2})

	require.True(t, rep.Apply(1, snap))
	first, ok := rep.Pose(1)
	require.True(t, ok)

	require.True(t, rep.Apply(1, snap))
	second, _ := rep.Pose(1)
	assert.Equal(t, first, second)
	assert.Equal(t, snap.State.Pose(), second)
}

func TestReplicatorStepTakesNewest(t *testing.T) {
	rep := NewReplicator()
	rep.Receive(2, authorityAt(10, mgl64.Vec3{10, 0, 0}))
	rep.Receive(2, authorityAt(8, mgl64.Vec3{8, 0, 0}))
	rep.Receive(5, authorityAt(3, mgl64.Vec3{3, 0, 0}))
	rep.Step()

	pose, ok := rep.Pose(2)
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, pose.Position)

	assert.Equal(t, []uint64{2, 5}, rep.IDs())
	rep.Forget(2)
	assert.Equal(t, []uint64{5}, rep.IDs())
	assert.Equal(t, 1, rep.Len())
}
